package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/hostpanel/tokengate/internal/token"
)

// memoryEntry is a cached record (nil for negative entries) with expiry.
type memoryEntry struct {
	record     *token.Record
	insertedAt time.Time
	expiresAt  time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is an in-process implementation of Cache.
type MemoryCache struct {
	config  Config
	entries map[string]*memoryEntry
	metrics *Metrics
	mu      sync.RWMutex

	janitor *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// MemoryCacheOption is a functional option for the memory cache.
type MemoryCacheOption func(*MemoryCache)

// WithMemoryCacheMetrics sets the metrics for the memory cache.
func WithMemoryCacheMetrics(metrics *Metrics) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.metrics = metrics
	}
}

// NewMemoryCache creates a new in-process token cache.
func NewMemoryCache(config Config, opts ...MemoryCacheOption) (*MemoryCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &MemoryCache{
		config:  config,
		entries: make(map[string]*memoryEntry),
		janitor: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics("memory")
	}

	go c.runJanitor()

	return c, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, secret string) (Result, error) {
	c.mu.RLock()
	entry, ok := c.entries[secret]
	c.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		if ok {
			c.mu.Lock()
			// Re-check under the write lock; a Put may have replaced it.
			if cur, still := c.entries[secret]; still && cur.expired(time.Now()) {
				delete(c.entries, secret)
			}
			c.mu.Unlock()
		}
		c.metrics.RecordLookup(Miss)
		return Result{Kind: Miss}, nil
	}

	if entry.record == nil {
		c.metrics.RecordLookup(NegativeHit)
		return Result{Kind: NegativeHit}, nil
	}

	c.metrics.RecordLookup(Hit)
	return Result{Kind: Hit, Record: entry.record.Clone()}, nil
}

// PutPositive implements Cache.
func (c *MemoryCache) PutPositive(_ context.Context, secret string, record *token.Record) error {
	now := time.Now()
	c.mu.Lock()
	c.entries[secret] = &memoryEntry{
		record:     record.Clone(),
		insertedAt: now,
		expiresAt:  now.Add(c.config.PositiveTTL),
	}
	c.mu.Unlock()
	return nil
}

// PutNegative implements Cache.
func (c *MemoryCache) PutNegative(_ context.Context, secret string) error {
	now := time.Now()
	c.mu.Lock()
	c.entries[secret] = &memoryEntry{
		insertedAt: now,
		expiresAt:  now.Add(c.config.NegativeTTL),
	}
	c.mu.Unlock()
	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, secret string) error {
	c.mu.Lock()
	delete(c.entries, secret)
	c.mu.Unlock()
	c.metrics.RecordInvalidation()
	return nil
}

// Close implements Cache. Close is idempotent.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		c.janitor.Stop()
		close(c.done)
	})
	return nil
}

// Size returns the number of live entries.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// runJanitor periodically removes expired entries.
func (c *MemoryCache) runJanitor() {
	for {
		select {
		case <-c.janitor.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *MemoryCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	for secret, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, secret)
		}
	}
	c.mu.Unlock()
}

// Ensure MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
