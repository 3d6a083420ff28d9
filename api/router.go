// Package api wires the gin router: public endpoints, the authenticated
// /api group and the operational surfaces.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/metascraper/api/handler"
	"github.com/use-agent/metascraper/api/middleware"
	"github.com/use-agent/metascraper/config"
	"github.com/use-agent/metascraper/provider"
	"github.com/use-agent/metascraper/service"
)

// NewRouter creates a configured gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → RequestID → Logger
//	API:     Timeout → Auth (if a token is set) → RateLimit
//
// Info, health, metrics, cache admin and the redirect stay outside auth
// so monitoring and link sharing keep working without credentials.
func NewRouter(orch *service.Orchestrator, reg *provider.Registry, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(gin.Logger())

	authEnabled := cfg.Auth.Token != ""

	// Public surfaces.
	r.GET("/", handler.Info(authEnabled))
	r.GET("/health", handler.Health(orch, startTime))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/cache/stats", handler.CacheStats(orch.Cache()))
	r.DELETE("/cache/clear", handler.CacheClear(orch.Cache()))
	r.DELETE("/cache/:provider/:id", handler.CacheRemove(orch.Cache()))
	r.GET("/r/:provider/:id", handler.Redirect(reg))

	// Scraping endpoints — deadline + auth + abuse limiting.
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	apiGroup.Use(middleware.Auth(cfg.Auth.Token, cfg.Auth.HeaderName))
	apiGroup.Use(middleware.RateLimit(cfg.ClientRate))

	// The literal "search" segment must be matched before the :id
	// wildcard, so both routes hang off the same :provider parameter.
	apiGroup.GET("/:provider/search", handler.Search(orch))
	apiGroup.GET("/:provider/:id", handler.Detail(orch))

	return r
}
