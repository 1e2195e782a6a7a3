package zoho

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock. After advances the clock by the
// full wait and fires immediately, so tests never sleep.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *mockClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// blockClock never fires After, for cancellation tests.
type blockClock struct {
	now time.Time
}

func (c blockClock) Now() time.Time                         { return c.now }
func (c blockClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestLimiterAdmitsUpToEffectiveLimit(t *testing.T) {
	clk := newMockClock()
	l := newLimiter(clk, 10, 0) // effective limit 5

	start := clk.Now()
	for i := 0; i < 5; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}

	if got := l.Pending(); got != 5 {
		t.Errorf("Pending = %d, want 5", got)
	}
	if !clk.Now().Equal(start) {
		t.Errorf("clock advanced %v for admissions within the limit", clk.Now().Sub(start))
	}
}

func TestLimiterBlocksUntilOldestExpires(t *testing.T) {
	clk := newMockClock()
	l := newLimiter(clk, 10, 0)

	for i := 0; i < 5; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}

	start := clk.Now()
	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("Admit over limit: %v", err)
	}

	if waited := clk.Now().Sub(start); waited != time.Minute {
		t.Errorf("waited %v before the over-limit admission, want %v", waited, time.Minute)
	}
	if got := l.Pending(); got != 1 {
		t.Errorf("Pending = %d after window expiry, want 1", got)
	}
}

func TestLimiterSlidesRatherThanResets(t *testing.T) {
	clk := newMockClock()
	l := newLimiter(clk, 10, 0)

	// Three early admissions, then two 30 seconds later.
	for i := 0; i < 3; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	clk.advance(30 * time.Second)
	for i := 0; i < 2; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	// The sixth admission only needs the first three to age out, not
	// the whole window.
	start := clk.Now()
	if err := l.Admit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if waited := clk.Now().Sub(start); waited != 30*time.Second {
		t.Errorf("waited %v, want %v", waited, 30*time.Second)
	}
	if got := l.Pending(); got != 3 {
		t.Errorf("Pending = %d, want 3", got)
	}
}

func TestLimiterAdmitCanceled(t *testing.T) {
	l := newLimiter(blockClock{now: time.Unix(0, 0)}, 6, 0) // effective limit 1

	if err := l.Admit(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Admit(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Admit = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Admit did not return after cancellation")
	}
}

func TestLimiterFloorsEffectiveLimit(t *testing.T) {
	clk := newMockClock()
	l := newLimiter(clk, 3, 0) // margin would take this below 1

	if err := l.Admit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := l.Pending(); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}
