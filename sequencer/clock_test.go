package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"
)

// manualClock only moves when a test advances it. Sleep parks the caller
// until the test releases it with Step.
type manualClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepers chan *sleeper
}

type sleeper struct {
	d    time.Duration
	wake chan struct{}
}

func newManualClock() *manualClock {
	return &manualClock{
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		sleepers: make(chan *sleeper),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) Sleep(ctx context.Context, d time.Duration) error {
	s := &sleeper{d: d, wake: make(chan struct{})}
	select {
	case c.sleepers <- s:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait returns the next parked sleeper without waking it.
func (c *manualClock) Wait(t *testing.T) *sleeper {
	t.Helper()
	select {
	case s := <-c.sleepers:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sleeper")
		return nil
	}
}

// Release advances time by the sleeper's duration and wakes it.
func (c *manualClock) Release(s *sleeper) {
	c.Advance(s.d)
	close(s.wake)
}

// Step waits for the next sleeper and releases it.
func (c *manualClock) Step(t *testing.T) {
	t.Helper()
	c.Release(c.Wait(t))
}

func TestRealClockSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := RealClock().Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
}
