package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Clone(ErrMissingData, "faculty not uploaded")
	wrapped := fmt.Errorf("generate: %w", err)

	assert.True(t, Is(wrapped, ErrMissingData))
	assert.False(t, Is(wrapped, ErrExamNotAvailable))
	assert.False(t, Is(nil, ErrMissingData))
	assert.False(t, Is(sql.ErrNoRows, ErrNotFound))
}

func TestCloneKeepsSentinelIntact(t *testing.T) {
	clone := Clone(ErrConflict, "faculty already invigilates A-102 in this slot")

	assert.Equal(t, "conflict", ErrConflict.Message)
	assert.Equal(t, http.StatusConflict, clone.Status)
	assert.Equal(t, "CONFLICT", clone.Code)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)
	assert.Nil(t, FromError(nil))
}
