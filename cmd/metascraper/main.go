package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/metascraper/api"
	"github.com/use-agent/metascraper/browser"
	"github.com/use-agent/metascraper/cache"
	"github.com/use-agent/metascraper/config"
	"github.com/use-agent/metascraper/fetch"
	"github.com/use-agent/metascraper/limiter"
	"github.com/use-agent/metascraper/provider"
	"github.com/use-agent/metascraper/service"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("metascraper starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"isolation", cfg.Browser.Isolation,
		"authEnabled", cfg.Auth.Token != "",
	)

	// ── 3. Network clients ──────────────────────────────────────────
	// The browser pool launches Chromium lazily on first page open, so
	// startup stays cheap when only HTTP providers see traffic.
	httpClient := fetch.NewHTTPClient(cfg.HTTPClient)
	pool := browser.NewPool(cfg.Browser)
	defer pool.Close()

	hanimeDetail := fetch.NewBrowserClient(pool, httpClient, browser.RoleDetail, []string{"h1"})
	hanimeSearch := fetch.NewBrowserClient(pool, httpClient, browser.RoleSearch, nil)

	// ── 4. Providers ────────────────────────────────────────────────
	dlsite := provider.NewDLsite(httpClient, slog.Default())
	hanime := provider.NewHanime(hanimeDetail, hanimeSearch, slog.Default())
	registry := provider.NewRegistry(dlsite, hanime)

	// ── 5. Admission, cadence, cache ────────────────────────────────
	runtimes := make(map[string]*service.ProviderRuntime)
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		runtimes[name] = &service.ProviderRuntime{
			Provider: p,
			Slots:    limiter.NewSlotPool(cfg.Provider.MaxConcurrentFor(name)),
			Rate:     limiter.NewIntervalLimiter(cfg.Provider.RateLimitFor(name)),
		}
		slog.Info("provider configured",
			"provider", name,
			"slots", cfg.Provider.MaxConcurrentFor(name),
			"rateLimit", cfg.Provider.RateLimitFor(name),
		)
	}
	metaCache := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL)

	orch := service.NewOrchestrator(runtimes, metaCache, cfg.Provider.WaitBudget, 50, slog.Default())

	// ── 6. Router and HTTP server ───────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(orch, registry, cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// pool.Close() runs via defer — retires contexts and kills Chromium.
	slog.Info("metascraper stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
