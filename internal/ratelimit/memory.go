package ratelimit

import (
	"context"
	"sync"
	"time"
)

// windowCounter tracks one key's count within its current window.
type windowCounter struct {
	mu          sync.Mutex
	count       int64
	windowStart time.Time
}

// MemoryCounter is an in-process implementation of Counter. The per-key
// lock makes the check-and-count a single critical section.
type MemoryCounter struct {
	counters sync.Map
	metrics  *Metrics

	janitor *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCounter creates a new in-process fixed-window counter.
func NewMemoryCounter() *MemoryCounter {
	c := &MemoryCounter{
		metrics: NewMetrics("memory"),
		janitor: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go c.runJanitor()

	return c
}

// Acquire implements Counter.
func (c *MemoryCounter) Acquire(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if limit < 1 || window <= 0 {
		return nil, ErrInvalidLimit
	}

	now := time.Now()
	start := windowStart(now, window)

	value, _ := c.counters.LoadOrStore(key, &windowCounter{windowStart: start})
	wc := value.(*windowCounter)

	wc.mu.Lock()
	if !wc.windowStart.Equal(start) {
		wc.count = 0
		wc.windowStart = start
	}

	allowed := wc.count < int64(limit)
	if allowed {
		wc.count++
	}
	count := wc.count
	wc.mu.Unlock()

	result := buildResult(allowed, limit, count, start, window, now)
	c.metrics.RecordAcquire(allowed)
	return result, nil
}

// Peek implements Counter.
func (c *MemoryCounter) Peek(_ context.Context, key string, window time.Duration) (int64, error) {
	value, ok := c.counters.Load(key)
	if !ok {
		return 0, nil
	}

	wc := value.(*windowCounter)
	start := windowStart(time.Now(), window)

	wc.mu.Lock()
	defer wc.mu.Unlock()
	if !wc.windowStart.Equal(start) {
		return 0, nil
	}
	return wc.count, nil
}

// Reset implements Counter.
func (c *MemoryCounter) Reset(_ context.Context, key string, _ time.Duration) error {
	c.counters.Delete(key)
	return nil
}

// Close implements Counter. Close is idempotent.
func (c *MemoryCounter) Close() error {
	c.once.Do(func() {
		c.janitor.Stop()
		close(c.done)
	})
	return nil
}

// runJanitor periodically drops counters from past windows.
func (c *MemoryCounter) runJanitor() {
	for {
		select {
		case <-c.janitor.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes counters from long-finished windows. The window size is
// not stored on the counter, so a generous fixed horizon is used.
func (c *MemoryCounter) sweep() {
	horizon := time.Now().Add(-10 * time.Minute)
	c.counters.Range(func(key, value interface{}) bool {
		wc := value.(*windowCounter)
		wc.mu.Lock()
		stale := wc.windowStart.Before(horizon)
		wc.mu.Unlock()
		if stale {
			c.counters.Delete(key)
		}
		return true
	})
}

// buildResult assembles a Result from a post-decision count.
func buildResult(allowed bool, limit int, count int64, start time.Time, window time.Duration, now time.Time) *Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := start.Add(window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	result := &Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !allowed {
		result.RetryAfter = resetAfter
	}
	return result
}

// Ensure MemoryCounter implements Counter.
var _ Counter = (*MemoryCounter)(nil)
