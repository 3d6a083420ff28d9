// Package limiter provides per-provider admission control: a fixed pool of
// identifiable slots and a per-slot minimum-interval rate limiter.
package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Slot is one unit of admission in a provider's pool. Its ID is stable for
// the pool's lifetime and is used by the rate limiter to key cadence state.
// A Slot is owned exclusively by the handler that acquired it.
type Slot struct {
	ID int

	pool     *SlotPool
	released atomic.Bool
}

// Release returns the slot to its pool. Safe to call more than once; only
// the first call has an effect.
func (s *Slot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.pool.put(s.ID)
}

// SlotPool is a fixed pool of N identifiable slots. Acquisition hands out
// the lowest-numbered idle slot so that slot identities stay stable and
// rate-limit cadence accumulates on the same slots under low load.
type SlotPool struct {
	tokens chan struct{}

	mu   sync.Mutex
	busy []bool
}

// NewSlotPool creates a pool with n slots. n must be >= 1.
func NewSlotPool(n int) *SlotPool {
	if n < 1 {
		n = 1
	}
	p := &SlotPool{
		tokens: make(chan struct{}, n),
		busy:   make([]bool, n),
	}
	for i := 0; i < n; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Size returns the pool capacity N.
func (p *SlotPool) Size() int { return cap(p.tokens) }

// InUse returns the number of currently acquired slots.
func (p *SlotPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.busy {
		if b {
			n++
		}
	}
	return n
}

// TryAcquire returns an idle slot, waiting up to waitBudget for a release.
// It returns (nil, nil) when the budget elapses with no slot free, and
// ctx.Err() when the context fires first.
func (p *SlotPool) TryAcquire(ctx context.Context, waitBudget time.Duration) (*Slot, error) {
	// Fast path: a token is available right now.
	select {
	case <-p.tokens:
		return p.take(), nil
	default:
	}

	if waitBudget <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(waitBudget)
	defer timer.Stop()

	select {
	case <-p.tokens:
		return p.take(), nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// take consumes one already-claimed token and binds it to the
// lowest-numbered idle slot.
func (p *SlotPool) take() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.busy {
		if !b {
			p.busy[i] = true
			return &Slot{ID: i, pool: p}
		}
	}
	// Unreachable: a token was consumed, so an idle slot exists.
	panic("limiter: token/slot accounting out of sync")
}

func (p *SlotPool) put(id int) {
	p.mu.Lock()
	p.busy[id] = false
	p.mu.Unlock()
	p.tokens <- struct{}{}
}
