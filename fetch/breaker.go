package fetch

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// hostBreakers holds one circuit breaker per upstream host. A run of
// transport failures against a host trips it open for the cooldown, so a
// struggling upstream is not hammered while it recovers. A nil receiver
// or zero failure threshold disables breaking entirely.
type hostBreakers struct {
	failures uint32
	cooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newHostBreakers(failures int, cooldown time.Duration) *hostBreakers {
	if failures <= 0 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &hostBreakers{
		failures: uint32(failures),
		cooldown: cooldown,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (h *hostBreakers) forHost(host string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	cb, ok := h.breakers[host]
	if !ok {
		threshold := h.failures
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: h.cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
		h.breakers[host] = cb
	}
	return cb
}

// execute runs fn through the host's breaker. Responses count as failures
// only on transport errors; HTTP status handling stays with the caller so
// a 404 never trips a host open.
func (h *hostBreakers) execute(u *url.URL, fn func() (*http.Response, error)) (*http.Response, error) {
	if h == nil {
		return fn()
	}
	res, err := h.forHost(hostKey(u)).Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}
