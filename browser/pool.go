// Package browser maintains the long-lived browser and the pool of
// rotating incognito contexts used for anti-bot traffic. Contexts are
// retired on TTL, page-count, challenge detection or disconnect, so no
// single fingerprint accumulates enough history to get the IP banned.
package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/metascraper/config"
	"github.com/use-agent/metascraper/metrics"
	"github.com/use-agent/metascraper/models"
)

// Role distinguishes search traffic from detail traffic. With
// IsolationSplitSearchDetail each role gets its own context; with
// IsolationShared both roles resolve to the same one.
type Role string

const (
	RoleSearch Role = "search"
	RoleDetail Role = "detail"
)

// Context is one incognito browser context plus its rotation bookkeeping.
type Context struct {
	browser *rod.Browser // incognito session, child of the pool's browser
	birth   time.Time

	pagesOpened atomic.Int64
	challenged  atomic.Bool
}

// FlagChallenged marks the context so the next acquisition rotates it.
func (c *Context) FlagChallenged() { c.challenged.Store(true) }

// Challenged reports whether the challenge flag is set.
func (c *Context) Challenged() bool { return c.challenged.Load() }

// Pool owns the browser process and the per-role contexts. The underlying
// Browser handle is a first-class field so callers never have to dig it
// out by reflection.
type Pool struct {
	cfg      config.BrowserConfig
	detector *ChallengeDetector

	launchOnce sync.Once
	launchErr  error

	// Browser is the root connection, populated on first use.
	Browser *rod.Browser

	// newContext and alive are swappable seams: the defaults launch
	// Chromium and probe it over CDP, tests substitute in-memory fakes.
	newContext func() (*Context, error)
	alive      func(*Context) bool

	mu   sync.Mutex
	ctxs map[string]*Context
}

// NewPool creates a Pool. The browser is launched lazily on first page
// open so the service can start (and be tested) without a Chromium
// install.
func NewPool(cfg config.BrowserConfig) *Pool {
	p := &Pool{
		cfg:      cfg,
		detector: NewChallengeDetector(cfg.ChallengeURLHints, cfg.ChallengeDOMHints),
		ctxs:     make(map[string]*Context),
	}
	p.newContext = p.incognito
	p.alive = func(c *Context) bool {
		return c.browser != nil && !disconnected(c.browser)
	}
	return p
}

// incognito launches the browser if needed and spawns a fresh incognito
// context.
func (p *Pool) incognito() (*Context, error) {
	if err := p.launch(); err != nil {
		return nil, err
	}
	inc, err := p.Browser.Incognito()
	if err != nil {
		return nil, models.Upstream("failed to create browser context", err)
	}
	return &Context{browser: inc, birth: time.Now()}, nil
}

// launch starts Chromium with the stealth flag set and connects.
func (p *Pool) launch() error {
	p.launchOnce.Do(func() {
		l := launcher.New().
			Headless(p.cfg.Headless).
			NoSandbox(p.cfg.NoSandbox)

		if p.cfg.Bin != "" {
			l = l.Bin(p.cfg.Bin)
		}
		if p.cfg.Proxy != "" {
			l = l.Proxy(p.cfg.Proxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("force-webrtc-ip-handling-policy"), "disable_non_proxied_udp")
		l.Set(flags.Flag("accept-lang"), p.cfg.AcceptLanguage)
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			p.launchErr = models.Upstream("failed to launch browser", err)
			return
		}
		slog.Info("browser launched", "controlURL", controlURL)

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			p.launchErr = models.Upstream("failed to connect to browser", err)
			return
		}
		p.Browser = b
	})
	return p.launchErr
}

// roleKey maps a role to its context table key under the isolation mode.
func (p *Pool) roleKey(role Role) string {
	if p.cfg.Isolation == config.IsolationSplitSearchDetail {
		return string(role)
	}
	return "shared"
}

// context returns a live context for the role, rotating the existing one
// when any retirement rule holds at lookup time. Rotation is mutually
// exclusive; page opens proceed concurrently once a context is chosen.
func (p *Pool) context(role Role) (*Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.roleKey(role)
	c := p.ctxs[key]
	if c != nil {
		if cause := p.rotationCause(c); cause != "" {
			slog.Info("rotating browser context",
				"role", key,
				"cause", cause,
				"age", time.Since(c.birth).Round(time.Second),
				"pagesOpened", c.pagesOpened.Load(),
			)
			metrics.ContextRotationsTotal.WithLabelValues(cause).Inc()
			go retire(c)
			c = nil
		}
	}
	if c == nil {
		fresh, err := p.newContext()
		if err != nil {
			return nil, err
		}
		c = fresh
		p.ctxs[key] = c
	}
	return c, nil
}

// rotationCause returns a non-empty cause when the context must be
// retired.
func (p *Pool) rotationCause(c *Context) string {
	if !p.alive(c) {
		return "disconnected"
	}
	if p.cfg.ContextTTL > 0 && time.Since(c.birth) > p.cfg.ContextTTL {
		return "ttl"
	}
	if p.cfg.MaxPagesPerContext > 0 && c.pagesOpened.Load() >= int64(p.cfg.MaxPagesPerContext) {
		return "pages"
	}
	if p.cfg.RotateOnChallenge && c.challenged.Load() {
		return "challenge"
	}
	return ""
}

// disconnected probes the context with a cheap CDP call.
func disconnected(b *rod.Browser) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := proto.BrowserGetVersion{}.Call(b.Context(ctx))
	return err != nil
}

// retire closes all pages of a context and disposes it. Errors are logged
// only; a half-dead context cannot be recovered anyway.
func retire(c *Context) {
	if c.browser == nil {
		return
	}
	pages, err := c.browser.Pages()
	if err == nil {
		for _, pg := range pages {
			_ = pg.Close()
		}
	}
	if c.browser.BrowserContextID != "" {
		err = proto.TargetDisposeBrowserContext{
			BrowserContextID: c.browser.BrowserContextID,
		}.Call(c.browser)
	}
	if err != nil {
		slog.Warn("browser context retirement incomplete", "error", err)
	}
}

// Close retires all contexts and kills the browser process. Call on
// graceful shutdown to prevent zombie Chromium processes.
func (p *Pool) Close() {
	p.mu.Lock()
	ctxs := p.ctxs
	p.ctxs = make(map[string]*Context)
	p.mu.Unlock()

	for _, c := range ctxs {
		retire(c)
	}
	if p.Browser != nil {
		slog.Info("browser pool shutting down: closing browser")
		if err := p.Browser.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
	}
}

// Stats returns per-role context ages and page counts for health output.
func (p *Pool) Stats() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any, len(p.ctxs))
	for key, c := range p.ctxs {
		out[key] = map[string]any{
			"age":         time.Since(c.birth).Round(time.Second).String(),
			"pagesOpened": c.pagesOpened.Load(),
			"challenged":  c.challenged.Load(),
		}
	}
	return out
}
