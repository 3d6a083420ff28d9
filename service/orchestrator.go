// Package service contains the request orchestrator: the single place
// where cache, admission slots, rate cadence and providers are composed
// into the detail and search pipelines.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/metascraper/cache"
	"github.com/use-agent/metascraper/limiter"
	"github.com/use-agent/metascraper/metrics"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/provider"
)

// searchFanout bounds the concurrent detail fetches enriching one
// search's hits.
const searchFanout = 4

// ProviderRuntime bundles one provider with its admission pool and rate
// limiter. Slots and cadence are strictly per provider.
type ProviderRuntime struct {
	Provider provider.Provider
	Slots    *limiter.SlotPool
	Rate     *limiter.IntervalLimiter
}

// Orchestrator owns the detail and search pipelines.
//
// Detail: parse → cache fast path → slot acquisition → second cache
// check under slot ownership (the coalescing barrier) → rate wait →
// fetch → record cadence → cache fill.
//
// Search: parse → slot acquisition → rate wait → provider search →
// bounded detail fan-out. Search results never touch the cache: a
// keyword result set is not addressable by (provider, id) and going
// through the cache would poison negative entries.
type Orchestrator struct {
	runtimes   map[string]*ProviderRuntime
	cache      *cache.MetadataCache
	waitBudget time.Duration
	searchMax  int
	log        *slog.Logger
}

// NewOrchestrator wires the runtimes together. waitBudget bounds how
// long a request may wait for a free slot before SERVICE_BUSY.
func NewOrchestrator(runtimes map[string]*ProviderRuntime, metaCache *cache.MetadataCache, waitBudget time.Duration, searchMax int, log *slog.Logger) *Orchestrator {
	if searchMax <= 0 {
		searchMax = 30
	}
	normalized := make(map[string]*ProviderRuntime, len(runtimes))
	for name, rt := range runtimes {
		normalized[strings.ToLower(name)] = rt
	}
	return &Orchestrator{
		runtimes:   normalized,
		cache:      metaCache,
		waitBudget: waitBudget,
		searchMax:  searchMax,
		log:        log,
	}
}

// Cache exposes the metadata cache for the admin endpoints.
func (o *Orchestrator) Cache() *cache.MetadataCache { return o.cache }

// ProviderNames returns the configured provider names.
func (o *Orchestrator) ProviderNames() []string {
	names := make([]string, 0, len(o.runtimes))
	for name := range o.runtimes {
		names = append(names, name)
	}
	return names
}

// SlotStats snapshots per-provider slot occupancy for the health
// endpoint.
func (o *Orchestrator) SlotStats() models.SlotStats {
	stats := models.SlotStats{
		InUse: make(map[string]int, len(o.runtimes)),
		Max:   make(map[string]int, len(o.runtimes)),
	}
	for name, rt := range o.runtimes {
		stats.InUse[name] = rt.Slots.InUse()
		stats.Max[name] = rt.Slots.Size()
	}
	return stats
}

func (o *Orchestrator) runtime(providerName string) (*ProviderRuntime, error) {
	rt, ok := o.runtimes[strings.ToLower(providerName)]
	if !ok {
		return nil, models.Invalid("unknown provider: " + providerName)
	}
	return rt, nil
}

// Detail resolves one record by raw identifier. A cached not-found
// marker yields a NOT_FOUND error without touching the upstream.
func (o *Orchestrator) Detail(ctx context.Context, providerName, rawID string) (*models.Metadata, error) {
	rt, err := o.runtime(providerName)
	if err != nil {
		o.count(providerName, "detail", err)
		return nil, err
	}
	name := rt.Provider.Name()

	id, ok := rt.Provider.TryParseID(rawID)
	if !ok {
		err := models.Invalid("Invalid id: " + rawID + " carries no recognizable " + name + " identifier")
		o.count(name, "detail", err)
		return nil, err
	}

	// Fast path: answer from cache without admission.
	if meta, hit := o.cache.TryGet(name, id); hit {
		metrics.CacheEventsTotal.WithLabelValues(name, "hit_fast").Inc()
		return o.cachedResult(name, id, meta)
	}

	slot, err := rt.Slots.TryAcquire(ctx, o.waitBudget)
	if err != nil {
		err = models.Classify(err)
		o.count(name, "detail", err)
		return nil, err
	}
	if slot == nil {
		err := models.Busy("all " + name + " slots busy")
		o.count(name, "detail", err)
		return nil, err
	}
	defer slot.Release()
	metrics.SlotsInUse.WithLabelValues(name).Set(float64(rt.Slots.InUse()))
	defer func() { metrics.SlotsInUse.WithLabelValues(name).Set(float64(rt.Slots.InUse())) }()

	// Second check under slot ownership: a concurrent holder may have
	// filled the cache while this request waited for admission.
	if meta, hit := o.cache.TryGet(name, id); hit {
		metrics.CacheEventsTotal.WithLabelValues(name, "hit_coalesced").Inc()
		return o.cachedResult(name, id, meta)
	}
	metrics.CacheEventsTotal.WithLabelValues(name, "miss").Inc()

	if err := o.rateWait(ctx, rt, slot.ID); err != nil {
		err = models.Classify(err)
		o.count(name, "detail", err)
		return nil, err
	}

	meta, err := rt.Provider.FetchDetail(ctx, rt.Provider.BuildDetailURL(id))
	if err != nil {
		// A failed transit did not complete a request against the
		// upstream; cadence stays unrecorded.
		err = models.Classify(err)
		o.count(name, "detail", err)
		o.log.Warn("detail fetch failed", "provider", name, "id", id, "error", err)
		return nil, err
	}

	rt.Rate.RecordComplete(slot.ID)
	o.cache.Put(name, id, meta)

	if meta == nil {
		err := models.NotFound(name + " has no record for " + id)
		o.count(name, "detail", err)
		return nil, err
	}
	o.count(name, "detail", nil)
	return meta, nil
}

// cachedResult turns a cache entry into the caller-facing result,
// mapping a negative entry to NOT_FOUND.
func (o *Orchestrator) cachedResult(name, id string, meta *models.Metadata) (*models.Metadata, error) {
	if meta == nil {
		err := models.NotFound(name + " has no record for " + id)
		o.count(name, "detail", err)
		return nil, err
	}
	o.count(name, "detail", nil)
	return meta, nil
}

// Search runs the keyword verbatim through the provider and enriches
// each hit with a bounded detail fan-out. Per-hit failures are logged
// and dropped; an empty result is a valid result.
func (o *Orchestrator) Search(ctx context.Context, providerName, keyword string, maxResults int) ([]*models.Metadata, error) {
	rt, err := o.runtime(providerName)
	if err != nil {
		o.count(providerName, "search", err)
		return nil, err
	}
	name := rt.Provider.Name()

	if strings.TrimSpace(keyword) == "" {
		err := models.Invalid("empty search keyword")
		o.count(name, "search", err)
		return nil, err
	}
	if maxResults <= 0 || maxResults > o.searchMax {
		maxResults = o.searchMax
	}

	slot, err := rt.Slots.TryAcquire(ctx, o.waitBudget)
	if err != nil {
		err = models.Classify(err)
		o.count(name, "search", err)
		return nil, err
	}
	if slot == nil {
		err := models.Busy("all " + name + " slots busy")
		o.count(name, "search", err)
		return nil, err
	}
	defer slot.Release()
	metrics.SlotsInUse.WithLabelValues(name).Set(float64(rt.Slots.InUse()))
	defer func() { metrics.SlotsInUse.WithLabelValues(name).Set(float64(rt.Slots.InUse())) }()

	if err := o.rateWait(ctx, rt, slot.ID); err != nil {
		err = models.Classify(err)
		o.count(name, "search", err)
		return nil, err
	}

	hits, err := rt.Provider.Search(ctx, keyword, maxResults)
	if err != nil {
		err = models.Classify(err)
		o.count(name, "search", err)
		o.log.Warn("search failed", "provider", name, "keyword", keyword, "error", err)
		return nil, err
	}

	results := o.enrich(ctx, rt, hits)

	// The whole search+fan-out batch counts as one completed request
	// against the upstream.
	rt.Rate.RecordComplete(slot.ID)
	o.count(name, "search", nil)
	o.log.Debug("search done", "provider", name, "keyword", keyword, "hits", len(hits), "enriched", len(results))
	return results, nil
}

// enrich fetches details for the hits with at most searchFanout in
// flight, preserving hit order in the output.
func (o *Orchestrator) enrich(ctx context.Context, rt *ProviderRuntime, hits []models.SearchHit) []*models.Metadata {
	name := rt.Provider.Name()
	slots := make([]*models.Metadata, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchFanout)
	for i, hit := range hits {
		g.Go(func() error {
			meta, err := rt.Provider.FetchDetail(gctx, hit.DetailURL)
			if err != nil {
				o.log.Warn("hit enrichment failed",
					"provider", name, "url", hit.DetailURL, "error", err)
				return nil
			}
			slots[i] = meta
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*models.Metadata, 0, len(hits))
	for _, m := range slots {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (o *Orchestrator) rateWait(ctx context.Context, rt *ProviderRuntime, slotID int) error {
	start := time.Now()
	err := rt.Rate.WaitIfNeeded(ctx, slotID)
	if waited := time.Since(start); waited > 0 {
		metrics.RateWaitSeconds.WithLabelValues(rt.Provider.Name()).Observe(waited.Seconds())
	}
	return err
}

// count records one pipeline outcome.
func (o *Orchestrator) count(providerName, operation string, err error) {
	metrics.RequestsTotal.WithLabelValues(providerName, operation, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch models.CodeOf(err) {
	case models.ErrCodeNotFound:
		return "not_found"
	case models.ErrCodeInvalidInput:
		return "invalid"
	case models.ErrCodeBusy:
		return "busy"
	case models.ErrCodeCancelled:
		return "cancelled"
	case models.ErrCodeChallenge:
		return "challenge"
	default:
		return "upstream_error"
	}
}
