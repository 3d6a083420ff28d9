// Package provider implements the per-site scraping capabilities behind a
// uniform interface: parse an identifier, build a detail URL, search by
// keyword, and fetch a normalized metadata record.
package provider

import (
	"context"
	"strings"

	"github.com/use-agent/metascraper/models"
)

// Provider is one site's scraping capability. Implementations are pure
// logic over a fetch.Client; they hold no admission or rate state.
type Provider interface {
	// Name is the stable provider key used in routes and cache keys.
	Name() string

	// TryParseID accepts a raw string (URL, bare identifier, filename)
	// and returns the canonical provider ID, or false when the input
	// does not carry one. Never errors.
	TryParseID(input string) (string, bool)

	// BuildDetailURL is a pure function from canonical id to the
	// preferred detail URL.
	BuildDetailURL(id string) string

	// Search returns up to maxResults deduplicated hits for the keyword,
	// in site order. An empty result is not an error.
	Search(ctx context.Context, keyword string, maxResults int) ([]models.SearchHit, error)

	// FetchDetail returns the full record for a detail URL. A URL that
	// demonstrably does not address a product yields (nil, nil);
	// transient network or parse failures yield a typed error.
	FetchDetail(ctx context.Context, detailURL string) (*models.Metadata, error)
}

// Registry holds the registered providers keyed by route prefix.
type Registry struct {
	order  []string
	byName map[string]Provider
}

// NewRegistry builds a registry preserving registration order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		name := strings.ToLower(p.Name())
		if _, dup := r.byName[name]; dup {
			continue
		}
		r.byName[name] = p
		r.order = append(r.order, name)
	}
	return r
}

// Get returns the provider registered under name (case-insensitive).
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
