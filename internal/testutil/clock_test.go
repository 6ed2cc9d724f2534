package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVirtualClock_StartsAtEpoch(t *testing.T) {
	c := NewVirtualClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Zero(t, c.Elapsed())
}

func TestVirtualClock_SleepAdvances(t *testing.T) {
	c := NewVirtualClock()
	ctx := context.Background()

	require.NoError(t, c.Sleep(ctx, 5*time.Second))
	require.NoError(t, c.Sleep(ctx, 10*time.Second))

	assert.Equal(t, 15*time.Second, c.Elapsed())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, c.Sleeps())
}

func TestVirtualClock_SleepCancelled(t *testing.T) {
	c := NewVirtualClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Elapsed(), "cancelled sleep must not advance time")
	assert.Empty(t, c.Sleeps())
}

func TestVirtualClock_Reset(t *testing.T) {
	c := NewVirtualClock()
	require.NoError(t, c.Sleep(context.Background(), time.Minute))

	c.Reset()

	assert.Equal(t, Epoch, c.Now())
	assert.Empty(t, c.Sleeps())
}

func TestVirtualClock_ThreadSafe(t *testing.T) {
	c := NewVirtualClock()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Sleep(context.Background(), time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*time.Second, c.Elapsed())
	assert.Len(t, c.Sleeps(), goroutines)
}
