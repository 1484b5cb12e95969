package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// Envelope represents the common response contract. Error carries the
// human-readable message as a plain string; Code is the machine-readable
// sentinel code next to it.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// CountedEnvelope is returned by bulk operations that report how many rows
// they produced alongside the rows themselves.
type CountedEnvelope struct {
	Data       interface{}            `json:"data"`
	Count      int                    `json:"count"`
	Assigned   int                    `json:"assigned"`
	Unassigned int                    `json:"unassigned"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && len(meta[0]) > 0 {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Counted responds with a CountedEnvelope.
func Counted(c *gin.Context, status int, body CountedEnvelope) {
	noStore(c)
	if body.Data == nil {
		body.Data = []struct{}{}
	}
	c.JSON(status, body)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr.Message, Code: appErr.Code})
}

// Attachment streams a generated file as a download.
func Attachment(c *gin.Context, contentType, filename string, body []byte) {
	noStore(c)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, body)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
