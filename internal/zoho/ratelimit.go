package zoho

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock implements Clock using the standard time package.
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

const (
	// windowSpan is the interval the published per-minute quota applies to.
	windowSpan = time.Minute

	// windowSafetyMargin keeps admissions a few requests under the
	// per-minute ceiling so the quota is never grazed exactly.
	windowSafetyMargin = 5
)

// Limiter enforces the Zoho Mail API request budget with two layers:
// a sliding one-minute window capped below the per-minute ceiling, and
// a fixed minimum delay between consecutive requests. The window layer
// absorbs burst limits, the spacing layer steady-state throttling.
type Limiter struct {
	mu      sync.Mutex
	clock   Clock
	limit   int // admissions allowed per trailing window
	window  []time.Time
	spacing *rate.Limiter
}

// NewLimiter creates a limiter for the given per-minute ceiling and
// minimum inter-request delay. The safety margin is applied to the
// ceiling internally.
func NewLimiter(perMinute int, minDelay time.Duration) *Limiter {
	return newLimiter(realClock{}, perMinute, minDelay)
}

// newLimiter creates a limiter with the given clock.
// Panics if clk is nil.
func newLimiter(clk Clock, perMinute int, minDelay time.Duration) *Limiter {
	if clk == nil {
		panic("zoho: Limiter requires a non-nil Clock")
	}

	limit := perMinute - windowSafetyMargin
	if limit < 1 {
		limit = 1
	}

	spacing := rate.NewLimiter(rate.Inf, 1)
	if minDelay > 0 {
		spacing = rate.NewLimiter(rate.Every(minDelay), 1)
	}

	return &Limiter{clock: clk, limit: limit, spacing: spacing}
}

// Admit blocks until it is safe to issue one more request, then records
// the admission. It returns early only when ctx is cancelled.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}

	if err := l.spacing.Wait(ctx); err != nil {
		return err
	}

	l.record()
	return nil
}

// reserve returns 0 when the window has room, or the duration until the
// oldest admission falls out of the trailing window.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)

	if len(l.window) < l.limit {
		return 0
	}
	return windowSpan - now.Sub(l.window[0])
}

// record appends the admission timestamp. Must not be called with the
// lock held.
func (l *Limiter) record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.prune(now)
	l.window = append(l.window, now)
}

// prune drops window entries older than the trailing interval.
// Must be called with the lock held.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.window) && now.Sub(l.window[cut]) >= windowSpan {
		cut++
	}
	if cut > 0 {
		l.window = append(l.window[:0], l.window[cut:]...)
	}
}

// Pending returns the number of admissions currently inside the
// trailing window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.window)
}
