package testutil

import (
	"context"
	"sync"
	"time"
)

// Epoch is the start time of every new VirtualClock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// VirtualClock is a Clock whose Sleep advances virtual time instantly.
//
// It lets scheduler tests assert exact execution times (R1@0s, R2@5s,
// R1@15s...) without waiting. Cancellation is still honored: Sleep returns
// ctx.Err() when the context is done, without advancing.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewVirtualClock creates a clock set to Epoch.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{now: Epoch}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances virtual time by d and returns immediately.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

// Elapsed returns virtual time passed since Epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *VirtualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Reset sets the clock back to Epoch and forgets recorded sleeps.
func (c *VirtualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
	c.sleeps = nil
}
