package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/service"
)

// Detail returns a handler for GET /api/:provider/:id.
func Detail(orch *service.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta, err := orch.Detail(c.Request.Context(), c.Param("provider"), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.OK(meta))
	}
}
