// Package fetch provides the two network clients used by providers: a
// pooled keep-alive HTTP client with a Chrome TLS fingerprint, and a
// browser-driven client for JS-heavy or challenge-protected pages.
package fetch

import (
	"context"

	"github.com/go-rod/rod"
)

// Client is the capability providers fetch through.
type Client interface {
	// GetHTML retrieves the page body for url. A provider-visible
	// not-found (HTTP 404/410 or equivalent) is reported as a
	// models.ScrapeError with code NOT_FOUND.
	GetHTML(ctx context.Context, url string) (string, error)

	// GetJSON performs a GET and decodes the JSON response into out.
	GetJSON(ctx context.Context, url string, headers map[string]string, out any) error

	// PostJSON posts body as JSON and decodes the response into out.
	PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error

	// OpenPage returns a live browser page whose lifetime the caller
	// owns. Clients that cannot drive a browser return a typed error.
	OpenPage(ctx context.Context, url string) (*rod.Page, error)
}
