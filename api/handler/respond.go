// Package handler contains the gin handlers for the public and
// authenticated routes.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
)

// Version reported by the info and health endpoints.
const Version = "0.1.0"

// respondError maps an error to its HTTP status and writes the failure
// envelope.
func respondError(c *gin.Context, err error) {
	se := models.Classify(err)
	c.JSON(statusOf(se), models.Fail(se.ToDetail()))
}

// statusOf translates error codes to HTTP status codes.
func statusOf(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeBusy, models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUpstream, models.ErrCodeChallenge:
		return http.StatusBadGateway // 502
	case models.ErrCodeCancelled:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
