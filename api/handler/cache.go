package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/cache"
	"github.com/use-agent/metascraper/models"
)

// CacheStats returns a handler for GET /cache/stats.
func CacheStats(mc *cache.MetadataCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.OK(mc.Stats()))
	}
}

// CacheClear returns a handler for DELETE /cache/clear.
func CacheClear(mc *cache.MetadataCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		mc.Clear()
		c.JSON(http.StatusOK, models.OK(gin.H{"cleared": true}))
	}
}

// CacheRemove returns a handler for DELETE /cache/:provider/:id.
func CacheRemove(mc *cache.MetadataCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		id := c.Param("id")
		removed := mc.Remove(provider, id)
		c.JSON(http.StatusOK, models.OK(gin.H{"removed": removed}))
	}
}
