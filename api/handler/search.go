package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/service"
)

const (
	searchDefaultMax = 12
	searchMaxMax     = 50
)

// Search returns a handler for GET /api/:provider/search?title=&max=.
// The title is passed to the provider verbatim; max is clamped to
// [1, 50] with a default of 12.
func Search(orch *service.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		title := c.Query("title")
		if title == "" {
			respondError(c, models.Invalid("missing required query parameter: title"))
			return
		}

		max := searchDefaultMax
		if raw := c.Query("max"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, models.Invalid("max must be an integer"))
				return
			}
			max = n
		}
		if max < 1 {
			max = 1
		} else if max > searchMaxMax {
			max = searchMaxMax
		}

		results, err := orch.Search(c.Request.Context(), c.Param("provider"), title, max)
		if err != nil {
			respondError(c, err)
			return
		}
		if results == nil {
			results = []*models.Metadata{}
		}
		c.JSON(http.StatusOK, models.OK(results))
	}
}
