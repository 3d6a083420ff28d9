package models

import "time"

// Envelope is the uniform response shape for every endpoint.
type Envelope struct {
	Success   bool         `json:"success"`
	Data      any          `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// OK wraps data in a successful envelope.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data, Timestamp: time.Now().UTC()}
}

// Fail wraps an error detail in a failed envelope.
func Fail(detail *ErrorDetail) Envelope {
	return Envelope{Success: false, Error: detail, Timestamp: time.Now().UTC()}
}

// ServiceInfo is the payload for GET /.
type ServiceInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	AuthEnabled bool   `json:"authEnabled"`
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Slots     SlotStats `json:"slots"`
}

// SlotStats reports admission-pool utilisation per provider.
type SlotStats struct {
	InUse map[string]int `json:"inUse"`
	Max   map[string]int `json:"max"`
}

// CacheStats is the payload for GET /cache/stats.
type CacheStats struct {
	Entries       int     `json:"entries"`
	Capacity      int     `json:"capacity"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	TotalRequests uint64  `json:"totalRequests"`
	HitRatio      float64 `json:"hitRatio"`
	TTLSeconds    float64 `json:"ttlSeconds"`
}
