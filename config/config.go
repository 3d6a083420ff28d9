package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Provider   ProviderLimits
	HTTPClient HTTPClientConfig
	Browser    BrowserConfig
	Cache      CacheConfig
	ClientRate ClientRateConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8585
	Mode string // "debug", "release", "test"; default: "release"

	// RequestTimeout is the hard per-request deadline applied in the shell.
	RequestTimeout time.Duration // default: 150s
}

// AuthConfig controls bearer-token authentication on /api/* routes.
type AuthConfig struct {
	// Token is the shared bearer token. Empty disables authentication.
	Token string

	// HeaderName is the request header carrying the token.
	HeaderName string // default: "X-API-Token"
}

// ProviderLimits carries per-provider admission and cadence settings.
type ProviderLimits struct {
	// MaxConcurrent is the slot pool size N per provider.
	MaxConcurrent int // default: 2

	// RateLimit is the minimum interval between completed requests on the
	// same slot. 0 disables the limiter.
	RateLimit time.Duration // default: 3s

	// WaitBudget is how long a request waits for a free slot before the
	// service replies busy.
	WaitBudget time.Duration // default: 15s

	// MaxConcurrentOverride maps a provider name to a MaxConcurrent override.
	MaxConcurrentOverride map[string]int

	// RateLimitOverride maps a provider name to a RateLimit override.
	RateLimitOverride map[string]time.Duration
}

// MaxConcurrentFor returns the slot pool size for a provider.
func (p ProviderLimits) MaxConcurrentFor(name string) int {
	if n, ok := p.MaxConcurrentOverride[name]; ok && n > 0 {
		return n
	}
	return p.MaxConcurrent
}

// RateLimitFor returns the per-slot minimum interval for a provider.
func (p ProviderLimits) RateLimitFor(name string) time.Duration {
	if d, ok := p.RateLimitOverride[name]; ok {
		return d
	}
	return p.RateLimit
}

// HTTPClientConfig controls the pooled HTTP client.
type HTTPClientConfig struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration // default: 30s

	// UserAgent and AcceptLanguage are the fixed browser-like default
	// headers sent with every request.
	UserAgent      string
	AcceptLanguage string

	// BreakerFailures is the consecutive-failure count that trips the
	// per-host circuit breaker. 0 disables the breaker.
	BreakerFailures int // default: 5

	// BreakerCooldown is how long a tripped host stays open.
	BreakerCooldown time.Duration // default: 60s
}

// IsolationMode selects how browser contexts are shared between roles.
type IsolationMode string

const (
	IsolationShared            IsolationMode = "shared"
	IsolationSplitSearchDetail IsolationMode = "split"
)

// BrowserConfig controls the browser context pool.
type BrowserConfig struct {
	Headless  bool   // default: true
	NoSandbox bool   // default: false
	Bin       string // Chromium binary override
	Proxy     string // proxy URL for browser traffic

	UserAgent      string
	Locale         string // default: "en-US"
	TimezoneID     string // default: "Etc/UTC"
	AcceptLanguage string // default: "en-US,en;q=0.9"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080

	// ContextTTL is the maximum age of a browser context before rotation.
	ContextTTL time.Duration // default: 30m

	// MaxPagesPerContext rotates a context once it has opened this many pages.
	MaxPagesPerContext int // default: 40

	// RotateOnChallenge rotates a context whose challenge flag is set.
	RotateOnChallenge bool // default: true

	// Isolation selects shared or split-search-detail context usage.
	Isolation IsolationMode // default: shared

	// NavigationTimeout bounds the primary navigation attempt.
	NavigationTimeout time.Duration // default: 25s

	// ReadyTimeout bounds the primary ready-selector wait.
	ReadyTimeout time.Duration // default: 10s

	// SlowNavigationTimeout and SlowReadyTimeout apply on the slow retry.
	SlowNavigationTimeout time.Duration // default: 60s
	SlowReadyTimeout      time.Duration // default: 30s

	// ChallengeURLHints and ChallengeDOMHints extend challenge detection.
	ChallengeURLHints []string
	ChallengeDOMHints []string

	// BlockedResourceTypes lists resource types to block during navigation.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// Humanize enables the anti-bot interaction hook after navigation.
	Humanize bool // default: false
}

// CacheConfig controls the metadata cache.
type CacheConfig struct {
	TTL      time.Duration // default: 30m
	Capacity int           // default: 2000
}

// ClientRateConfig controls the per-client token-bucket middleware.
type ClientRateConfig struct {
	RequestsPerSecond float64 // default: 10
	Burst             int     // default: 20
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	ua := envOr("SCRAPER_USER_AGENT", defaultUserAgent)
	return &Config{
		Server: ServerConfig{
			Host:           envOr("SCRAPER_HOST", "0.0.0.0"),
			Port:           envIntOr("SCRAPER_PORT", 8585),
			Mode:           envOr("SCRAPER_MODE", "release"),
			RequestTimeout: envDurationOr("SCRAPER_REQUEST_TIMEOUT_SECONDS", 150*time.Second),
		},
		Auth: AuthConfig{
			Token:      os.Getenv("SCRAPER_AUTH_TOKEN"),
			HeaderName: envOr("SCRAPER_TOKEN_HEADER", "X-API-Token"),
		},
		Provider: ProviderLimits{
			MaxConcurrent:         envIntOr("SCRAPER_MAX_CONCURRENT", 2),
			RateLimit:             envDurationOr("SCRAPER_RATE_LIMIT_SECONDS", 3*time.Second),
			WaitBudget:            envDurationOr("SCRAPER_SLOT_WAIT_SECONDS", 15*time.Second),
			MaxConcurrentOverride: envIntMap("SCRAPER_MAX_CONCURRENT_"),
			RateLimitOverride:     envDurationMap("SCRAPER_RATE_LIMIT_SECONDS_"),
		},
		HTTPClient: HTTPClientConfig{
			Timeout:         envDurationOr("SCRAPER_HTTP_TIMEOUT", 30*time.Second),
			UserAgent:       ua,
			AcceptLanguage:  envOr("SCRAPER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			BreakerFailures: envIntOr("SCRAPER_BREAKER_FAILURES", 5),
			BreakerCooldown: envDurationOr("SCRAPER_BREAKER_COOLDOWN", time.Minute),
		},
		Browser: BrowserConfig{
			Headless:              envBoolOr("SCRAPER_HEADLESS", true),
			NoSandbox:             envBoolOr("SCRAPER_NO_SANDBOX", false),
			Bin:                   os.Getenv("SCRAPER_BROWSER_BIN"),
			Proxy:                 os.Getenv("SCRAPER_PROXY"),
			UserAgent:             ua,
			Locale:                envOr("SCRAPER_LOCALE", "en-US"),
			TimezoneID:            envOr("SCRAPER_TIMEZONE_ID", "Etc/UTC"),
			AcceptLanguage:        envOr("SCRAPER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			ViewportWidth:         envIntOr("SCRAPER_VIEWPORT_WIDTH", 1920),
			ViewportHeight:        envIntOr("SCRAPER_VIEWPORT_HEIGHT", 1080),
			ContextTTL:            envDurationOr("SCRAPER_CONTEXT_TTL_MINUTES", 30*time.Minute),
			MaxPagesPerContext:    envIntOr("SCRAPER_MAX_PAGES_PER_CONTEXT", 40),
			RotateOnChallenge:     envBoolOr("SCRAPER_ROTATE_ON_CHALLENGE", true),
			Isolation:             IsolationMode(envOr("SCRAPER_ISOLATION_MODE", string(IsolationShared))),
			NavigationTimeout:     envDurationOr("SCRAPER_NAV_TIMEOUT", 25*time.Second),
			ReadyTimeout:          envDurationOr("SCRAPER_READY_TIMEOUT", 10*time.Second),
			SlowNavigationTimeout: envDurationOr("SCRAPER_SLOW_NAV_TIMEOUT", 60*time.Second),
			SlowReadyTimeout:      envDurationOr("SCRAPER_SLOW_READY_TIMEOUT", 30*time.Second),
			ChallengeURLHints:     envSliceOr("SCRAPER_CHALLENGE_URL_HINTS", nil),
			ChallengeDOMHints:     envSliceOr("SCRAPER_CHALLENGE_DOM_HINTS", nil),
			BlockedResourceTypes: envSliceOr("SCRAPER_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			Humanize: envBoolOr("SCRAPER_HUMANIZE", false),
		},
		Cache: CacheConfig{
			TTL:      envDurationOr("SCRAPER_CACHE_TTL_MINUTES", 30*time.Minute),
			Capacity: envIntOr("SCRAPER_CACHE_CAPACITY", 2000),
		},
		ClientRate: ClientRateConfig{
			RequestsPerSecond: envFloatOr("SCRAPER_CLIENT_RATE_RPS", 10),
			Burst:             envIntOr("SCRAPER_CLIENT_RATE_BURST", 20),
		},
		Log: LogConfig{
			Level:  envOr("SCRAPER_LOG_LEVEL", "info"),
			Format: envOr("SCRAPER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDurationOr accepts either a Go duration string ("90s", "2m") or, for
// keys named *_SECONDS / *_MINUTES, a bare number in that unit.
func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if strings.HasSuffix(key, "_MINUTES") {
			return time.Duration(n * float64(time.Minute))
		}
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envIntMap collects PREFIX<NAME>=<int> overrides keyed by lowercased name.
func envIntMap(prefix string) map[string]int {
	m := make(map[string]int)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		if i, err := strconv.Atoi(v); err == nil {
			m[strings.ToLower(strings.TrimPrefix(k, prefix))] = i
		}
	}
	return m
}

// envDurationMap collects PREFIX<NAME>=<duration-or-seconds> overrides
// keyed by lowercased name.
func envDurationMap(prefix string) map[string]time.Duration {
	m := make(map[string]time.Duration)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(k, prefix))
		if d, err := time.ParseDuration(v); err == nil {
			m[name] = d
		} else if n, err := strconv.ParseFloat(v, 64); err == nil {
			m[name] = time.Duration(n * float64(time.Second))
		}
	}
	return m
}
