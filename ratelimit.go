package placebot

import (
	"context"
	"sync"
	"time"
)

// RateLimiter gates outgoing requests. Implementations must honor context cancellation
// so an interrupt stops a pending call without touching the network.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// RateLimiterFunc adapts a function into a RateLimiter.
type RateLimiterFunc func(ctx context.Context) error

// Wait implements the RateLimiter interface by invoking the underlying function.
func (f RateLimiterFunc) Wait(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Limiters waits on each limiter in turn. Nil entries are skipped.
type Limiters []RateLimiter

// Wait returns the first limiter error.
func (ls Limiters) Wait(ctx context.Context) error {
	for _, l := range ls {
		if l == nil {
			continue
		}
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NewIntervalLimiter paces outbound requests (websocket dial, bitmap download, mutation)
// so that consecutive calls start at least interval apart. Non-positive intervals fall
// back to one second.
func NewIntervalLimiter(interval time.Duration) RateLimiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &intervalLimiter{gap: interval}
}

// intervalLimiter reserves a start slot per caller, so concurrent callers queue up.
type intervalLimiter struct {
	mu   sync.Mutex
	last time.Time
	gap  time.Duration
}

func (l *intervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	slot := time.Now()
	if !l.last.IsZero() {
		if earliest := l.last.Add(l.gap); earliest.After(slot) {
			slot = earliest
		}
	}
	l.last = slot
	l.mu.Unlock()

	d := time.Until(slot)
	if d > 0 {
		Logger().Debug("pacing request", "wait", d)
	}
	return sleepContext(ctx, d)
}
