package browser

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/metascraper/metrics"
	"github.com/use-agent/metascraper/models"
)

// OpenPage navigates to targetURL in the role's context using the
// two-attempt strategy:
//
//  1. Primary: navigate with the standard timeouts, wait for any ready
//     selector, run the humanize hook, detect challenges. Return the page
//     if clean.
//  2. Slow retry (on primary failure or challenge): navigate again with
//     the slowRetry timeouts. On success the current context's challenge
//     flag is set so the next acquisition rotates it.
//
// The returned page's lifetime belongs to the caller.
//
// Lifecycle within one attempt (order matters):
//   - stealth JS and the hijack router are installed before Navigate —
//     they only affect navigations that happen after them
//   - the request context is bound to a clone so cleanup on the original
//     page reference still works after the request deadline fires
func (p *Pool) OpenPage(ctx context.Context, targetURL string, role Role, readySelectors []string) (*rod.Page, error) {
	c, err := p.context(role)
	if err != nil {
		return nil, err
	}

	page, primaryErr := p.openAttempt(ctx, c, targetURL, readySelectors, p.cfg.NavigationTimeout, p.cfg.ReadyTimeout)
	if primaryErr == nil {
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, models.Cancelled(ctx.Err())
	}
	slog.Warn("primary page open failed, slow retry",
		"url", targetURL, "role", role, "error", primaryErr)

	page, retryErr := p.openAttempt(ctx, c, targetURL, readySelectors, p.cfg.SlowNavigationTimeout, p.cfg.SlowReadyTimeout)
	if retryErr == nil {
		// The slow path got through where the primary did not; assume the
		// context is flagged by the anti-bot system and rotate it next time.
		c.FlagChallenged()
		slog.Info("slow retry succeeded, context flagged for rotation", "url", targetURL)
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, models.Cancelled(ctx.Err())
	}
	return nil, models.Upstream("page open failed after slow retry", retryErr)
}

// openAttempt opens one page, navigates and verifies it. The context's
// page counter increments exactly once per opened page, whether or not
// the attempt succeeds.
func (p *Pool) openAttempt(ctx context.Context, c *Context, targetURL string, readySelectors []string, navTimeout, readyTimeout time.Duration) (page *rod.Page, err error) {
	page, err = c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, models.Upstream("failed to open page", err)
	}
	c.pagesOpened.Add(1)

	defer func() {
		if err != nil {
			_ = page.Close()
			page = nil
		}
	}()

	// Stealth and fingerprint overrides, before navigation.
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}
	if p.cfg.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      p.cfg.UserAgent,
			AcceptLanguage: p.cfg.AcceptLanguage,
		})
	}
	if p.cfg.TimezoneID != "" {
		_ = proto.EmulationSetTimezoneOverride{TimezoneID: p.cfg.TimezoneID}.Call(page)
	}
	if p.cfg.Locale != "" {
		_ = proto.EmulationSetLocaleOverride{Locale: p.cfg.Locale}.Call(page)
	}
	if p.cfg.ViewportWidth > 0 && p.cfg.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             p.cfg.ViewportWidth,
			Height:            p.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
	}
	if ref := googleReferer(targetURL); ref != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Referer": gson.New(ref)},
		}.Call(page)
	}

	router := mountHijack(page, p.cfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	pg := page.Context(ctx)

	if navErr := pg.Timeout(navTimeout).Navigate(targetURL); navErr != nil {
		return nil, models.Classify(navErr)
	}

	if waitErr := waitReady(pg, readySelectors, readyTimeout); waitErr != nil {
		return nil, models.Upstream("page never became ready", waitErr)
	}

	if p.cfg.Humanize {
		humanize(ctx, pg)
	}

	html, htmlErr := pg.HTML()
	if htmlErr != nil {
		return nil, models.Classify(htmlErr)
	}
	if p.detector.IsChallenge(pageURL(pg, targetURL), html) {
		metrics.ChallengesTotal.Inc()
		return nil, models.NewScrapeError(models.ErrCodeChallenge, "challenge page served", nil)
	}

	return page, nil
}

// waitReady waits until any of the selectors appears, or falls back to
// DOM stability when none are configured.
func waitReady(pg *rod.Page, selectors []string, timeout time.Duration) error {
	pg = pg.Timeout(timeout)
	if len(selectors) == 0 {
		if err := pg.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
		}
		return nil
	}
	race := pg.Race()
	for _, sel := range selectors {
		race = race.Element(sel)
	}
	_, err := race.Do()
	return err
}

// pageURL returns the page's current URL, falling back to the requested
// one.
func pageURL(pg *rod.Page, fallback string) string {
	info, err := pg.Info()
	if err != nil || info.URL == "" {
		return fallback
	}
	return info.URL
}

// googleReferer fabricates a plausible search referer for the target host.
func googleReferer(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
}
