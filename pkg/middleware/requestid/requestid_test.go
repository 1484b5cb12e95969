package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		*captured = Value(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareKeepsIncomingID(t *testing.T) {
	var got string
	r := newRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderKey, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderKey))
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	var got string
	r := newRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderKey, strings.Repeat("x", maxLength+1))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Len(t, got, 36)
	assert.Equal(t, got, w.Header().Get(HeaderKey))
}
