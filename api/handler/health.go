package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/service"
)

// Health returns a handler for GET /health.
//
// Reports slot utilisation and degrades status when every provider's
// pool is fully occupied.
func Health(orch *service.Orchestrator, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		slots := orch.SlotStats()

		status := "healthy"
		if len(slots.Max) > 0 {
			saturated := true
			for name, max := range slots.Max {
				if slots.InUse[name] < max {
					saturated = false
					break
				}
			}
			if saturated {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, models.OK(models.HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Slots:     slots,
		}))
	}
}
