package placebot

import (
	"context"
	"sync"
	"time"
)

// DefaultCooldownBuffer is added to every cooldown wait so a submission never
// arrives marginally early because of clock skew or request latency.
const DefaultCooldownBuffer = 10 * time.Second

// Cooldown holds the earliest moment another pixel may be submitted.
// The zero time means "always permitted". Safe for concurrent use.
type Cooldown struct {
	mu     sync.Mutex
	until  time.Time
	buffer time.Duration
}

// NewCooldown returns a cooldown that is already expired. A negative buffer is treated as zero.
func NewCooldown(buffer time.Duration) *Cooldown {
	if buffer < 0 {
		buffer = 0
	}
	return &Cooldown{buffer: buffer}
}

// Set stores the next allowed time, truncated to whole seconds.
func (c *Cooldown) Set(t time.Time) {
	c.mu.Lock()
	c.until = time.Unix(t.Unix(), 0)
	c.mu.Unlock()
}

// Until returns the next allowed time. It is the zero time until Set is called.
func (c *Cooldown) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}

// Buffer returns the safety buffer added to each wait.
func (c *Cooldown) Buffer() time.Duration {
	return c.buffer
}

// Remaining reports whether now is still before the next allowed time and, if so,
// how long to sleep: the time left plus the safety buffer.
func (c *Cooldown) Remaining(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	until := c.until
	c.mu.Unlock()
	if until.IsZero() || !now.Before(until) {
		return 0, false
	}
	return until.Sub(now) + c.buffer, true
}

// Wait blocks until the cooldown has passed, including the buffer.
// It lets a Cooldown serve as the RateLimiter of a Client.
func (c *Cooldown) Wait(ctx context.Context) error {
	d, cooling := c.Remaining(time.Now())
	if !cooling {
		return ctx.Err()
	}
	return sleepContext(ctx, d)
}
