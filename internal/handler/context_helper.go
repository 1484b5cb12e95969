package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/invigilation-api/internal/middleware"
	"github.com/noah-isme/invigilation-api/internal/models"
	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
	"github.com/noah-isme/invigilation-api/pkg/response"
)

// requireClaims writes 401 and reports false when the request carries no claims.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
