// Package metrics exposes prometheus instrumentation for the request
// pipeline. Collectors are registered on the default registry and served
// by the router's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts pipeline operations by provider, operation
	// (detail, search) and outcome (ok, not_found, invalid, busy,
	// upstream_error, cancelled).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metascraper",
		Name:      "requests_total",
		Help:      "Pipeline operations by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	// CacheEventsTotal counts cache hits, misses and fast-path hits.
	CacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metascraper",
		Name:      "cache_events_total",
		Help:      "Metadata cache events (hit_fast, hit_coalesced, miss).",
	}, []string{"provider", "event"})

	// RateWaitSeconds observes time spent sleeping in the per-slot rate
	// limiter.
	RateWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "metascraper",
		Name:      "rate_wait_seconds",
		Help:      "Time spent waiting for slot cadence.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"provider"})

	// SlotsInUse tracks acquired admission slots per provider.
	SlotsInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "metascraper",
		Name:      "slots_in_use",
		Help:      "Currently acquired admission slots.",
	}, []string{"provider"})

	// ContextRotationsTotal counts browser context rotations by cause
	// (ttl, pages, challenge, disconnected).
	ContextRotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "metascraper",
		Name:      "browser_context_rotations_total",
		Help:      "Browser context rotations by cause.",
	}, []string{"cause"})

	// ChallengesTotal counts detected anti-bot challenges.
	ChallengesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metascraper",
		Name:      "challenges_total",
		Help:      "Detected anti-bot challenge pages.",
	})
)
