package limiter

import (
	"context"
	"sync"
	"time"
)

// IntervalLimiter enforces a minimum wall-time gap between consecutive
// *completed* requests sharing a slot. The gap is anchored at completion
// (RecordComplete), not at wait time, so a request that failed in transit
// never consumes the slot's rate budget.
//
// With N slots and interval T, steady-state throughput bounds at N/T
// requests per second.
type IntervalLimiter struct {
	interval time.Duration

	mu           sync.Mutex
	lastComplete map[int]time.Time
}

// NewIntervalLimiter creates a limiter with the given minimum interval.
// interval == 0 disables the limiter entirely: no wait, no record.
func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	return &IntervalLimiter{
		interval:     interval,
		lastComplete: make(map[int]time.Time),
	}
}

// Interval returns the configured minimum interval.
func (l *IntervalLimiter) Interval() time.Duration { return l.interval }

// WaitIfNeeded sleeps until now >= lastComplete[slotID] + interval,
// respecting cancellation. A slot that has never completed a request
// returns immediately.
func (l *IntervalLimiter) WaitIfNeeded(ctx context.Context, slotID int) error {
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	last, ok := l.lastComplete[slotID]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	wait := time.Until(last.Add(l.interval))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordComplete marks the slot's request as completed now. Call it only
// after downstream work actually ran against the upstream.
func (l *IntervalLimiter) RecordComplete(slotID int) {
	if l.interval <= 0 {
		return
	}
	l.mu.Lock()
	l.lastComplete[slotID] = time.Now()
	l.mu.Unlock()
}

// LastComplete reports the recorded completion time for a slot, if any.
func (l *IntervalLimiter) LastComplete(slotID int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.lastComplete[slotID]
	return t, ok
}
