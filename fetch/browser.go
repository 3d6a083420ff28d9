package fetch

import (
	"context"

	"github.com/go-rod/rod"

	"github.com/use-agent/metascraper/browser"
	"github.com/use-agent/metascraper/models"
)

// BrowserClient drives a real browser through the context pool. JSON
// traffic is delegated to the pooled HTTP client: browser contexts are a
// scarce resource and must not be spent on JSON endpoints.
type BrowserClient struct {
	pool *browser.Pool
	http *HTTPClient

	role           browser.Role
	readySelectors []string
}

// NewBrowserClient creates a browser-backed client for one traffic role.
// readySelectors are the CSS selectors whose appearance marks the page as
// rendered; empty falls back to DOM stability.
func NewBrowserClient(pool *browser.Pool, httpClient *HTTPClient, role browser.Role, readySelectors []string) *BrowserClient {
	return &BrowserClient{
		pool:           pool,
		http:           httpClient,
		role:           role,
		readySelectors: readySelectors,
	}
}

// GetHTML opens the page with the pool's retry strategy and returns the
// rendered HTML.
func (c *BrowserClient) GetHTML(ctx context.Context, url string) (string, error) {
	page, err := c.pool.OpenPage(ctx, url, c.role, c.readySelectors)
	if err != nil {
		return "", err
	}
	defer func() { _ = page.Close() }()

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", models.Classify(err)
	}
	return html, nil
}

// GetJSON uses the pooled HTTP client under the hood.
func (c *BrowserClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return c.http.GetJSON(ctx, url, headers, out)
}

// PostJSON uses the pooled HTTP client under the hood.
func (c *BrowserClient) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	return c.http.PostJSON(ctx, url, headers, body, out)
}

// OpenPage returns a live page handle whose lifetime the caller owns.
func (c *BrowserClient) OpenPage(ctx context.Context, url string) (*rod.Page, error) {
	return c.pool.OpenPage(ctx, url, c.role, c.readySelectors)
}
