package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Sequence is a monotonic logical counter used to stamp executions.
//
// Every Execution gets a strictly increasing Seq, so journal entries keep
// their order even when two executions share a wall-clock timestamp.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
// The scheduler's single loop goroutine is normally the only caller.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific value.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next increments the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current value without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// Clock is the scheduler's source of time.
//
// Sleep blocks for d or until ctx is done, whichever comes first, and
// returns ctx.Err() in the latter case. It must never be an
// uninterruptible sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock is the real-time Clock.
type WallClock struct{}

// Now returns time.Now().
func (WallClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d on a timer, returning early if ctx is cancelled.
func (WallClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
