package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
)

// Info returns a handler for GET /.
func Info(authEnabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.OK(models.ServiceInfo{
			Name:        "metascraper",
			Version:     Version,
			AuthEnabled: authEnabled,
		}))
	}
}
