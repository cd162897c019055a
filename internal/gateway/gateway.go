package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hostpanel/tokengate/internal/allowlist"
	"github.com/hostpanel/tokengate/internal/observability"
	"github.com/hostpanel/tokengate/internal/ratelimit"
	"github.com/hostpanel/tokengate/internal/token"
	"github.com/hostpanel/tokengate/internal/tokencache"
)

// Per-step budgets. The cache is optional fast path, so it gets the
// tightest budget; the store is authoritative and gets the loosest.
const (
	DefaultCacheTimeout   = 500 * time.Millisecond
	DefaultStoreTimeout   = 2 * time.Second
	DefaultCounterTimeout = time.Second
)

// counterKeyPrefix namespaces rate-limit keys by token identity. Limits
// follow the token, never the caller address.
const counterKeyPrefix = "token:"

// ErrInvalidConfig indicates that the gateway configuration is invalid.
var ErrInvalidConfig = errors.New("invalid gateway configuration")

// Config holds gateway tuning.
type Config struct {
	// Window is the rate-limit window applied to every token.
	Window time.Duration

	// CacheTimeout bounds a single cache operation.
	CacheTimeout time.Duration

	// StoreTimeout bounds a single store lookup.
	StoreTimeout time.Duration

	// CounterTimeout bounds a single counter operation.
	CounterTimeout time.Duration
}

// DefaultConfig returns a Config with default budgets.
func DefaultConfig() Config {
	return Config{
		Window:         ratelimit.DefaultWindow,
		CacheTimeout:   DefaultCacheTimeout,
		StoreTimeout:   DefaultStoreTimeout,
		CounterTimeout: DefaultCounterTimeout,
	}
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Window < 0 || c.CacheTimeout < 0 || c.StoreTimeout < 0 || c.CounterTimeout < 0 {
		return ErrInvalidConfig
	}
	if c.Window == 0 {
		c.Window = ratelimit.DefaultWindow
	}
	if c.CacheTimeout == 0 {
		c.CacheTimeout = DefaultCacheTimeout
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.CounterTimeout == 0 {
		c.CounterTimeout = DefaultCounterTimeout
	}
	return nil
}

// Gateway runs the authentication pipeline: resolve the credential,
// validate the record, check the source address, charge the rate limit.
// Checks run in that order and the first failure is terminal.
type Gateway struct {
	config  Config
	store   token.Store
	cache   tokencache.Cache
	counter ratelimit.Counter
	logger  observability.Logger
	metrics *Metrics

	now func() time.Time
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCache sets the lookup cache. Without it every request hits the store.
func WithCache(cache tokencache.Cache) Option {
	return func(g *Gateway) {
		g.cache = cache
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a Gateway over the given store and counter.
func New(config Config, store token.Store, counter ratelimit.Counter, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if counter == nil {
		return nil, fmt.Errorf("%w: counter is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		config:  config,
		store:   store,
		counter: counter,
		logger:  observability.NopLogger(),
		metrics: NewMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Window returns the rate-limit window the gateway applies.
func (g *Gateway) Window() time.Duration {
	return g.config.Window
}

// Authenticate runs the full pipeline for one request and returns its
// terminal decision. It never returns an error: infrastructure failures
// surface as ReasonInternal rejections.
func (g *Gateway) Authenticate(ctx context.Context, credential, clientAddress string) Decision {
	start := g.now()
	decision := g.authenticate(ctx, credential, clientAddress)
	g.metrics.RecordDecision(decision, time.Since(start))
	return decision
}

func (g *Gateway) authenticate(ctx context.Context, credential, clientAddress string) Decision {
	if credential == "" {
		return Rejected(ReasonMissingCredential)
	}

	record, decision, ok := g.resolve(ctx, credential)
	if !ok {
		return decision
	}

	if !record.IsValid(g.now()) {
		// Inactive and expired deliberately look identical to unknown.
		g.logger.Debug("token rejected",
			observability.String("token_id", record.ID),
			observability.Bool("active", record.Active),
		)
		return Rejected(ReasonInvalidCredential)
	}

	if !allowlist.IsAllowed(clientAddress, record.AllowedAddresses) {
		g.logger.Info("source address not allowed",
			observability.String("token_id", record.ID),
			observability.String("client_address", clientAddress),
		)
		return Rejected(ReasonForbiddenSource)
	}

	return g.enforceRateLimit(ctx, record)
}

// resolve maps the credential to a token record, consulting the cache
// first. ok is false when the returned Decision is terminal.
func (g *Gateway) resolve(ctx context.Context, credential string) (*token.Record, Decision, bool) {
	if g.cache != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, g.config.CacheTimeout)
		result, err := g.cache.Get(cacheCtx, credential)
		cancel()

		switch {
		case err != nil:
			// Cache trouble costs latency, not correctness.
			g.metrics.RecordResolve("cache_error")
			g.logger.Warn("cache lookup failed, falling back to store", observability.Error(err))
		case result.Kind == tokencache.Hit:
			g.metrics.RecordResolve("cache_hit")
			return result.Record, Decision{}, true
		case result.Kind == tokencache.NegativeHit:
			g.metrics.RecordResolve("cache_negative_hit")
			return nil, Rejected(ReasonInvalidCredential), false
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, g.config.StoreTimeout)
	record, err := g.store.LookupBySecret(storeCtx, credential)
	cancel()

	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			g.metrics.RecordResolve("store_miss")
			g.putNegative(ctx, credential)
			return nil, Rejected(ReasonInvalidCredential), false
		}
		// The system of record is down: fail closed.
		g.metrics.RecordResolve("store_error")
		g.logger.Error("store lookup failed", observability.Error(err))
		return nil, Rejected(ReasonInternal), false
	}

	g.metrics.RecordResolve("store_hit")
	g.putPositive(ctx, credential, record)
	return record, Decision{}, true
}

// enforceRateLimit charges one unit against the token's window. Counter
// failures reject the request rather than waving it through.
func (g *Gateway) enforceRateLimit(ctx context.Context, record *token.Record) Decision {
	counterCtx, cancel := context.WithTimeout(ctx, g.config.CounterTimeout)
	result, err := g.counter.Acquire(counterCtx, counterKeyPrefix+record.ID, record.RateLimit, g.config.Window)
	cancel()

	if err != nil {
		g.logger.Error("rate limit counter failed",
			observability.String("token_id", record.ID),
			observability.Error(err),
		)
		return Rejected(ReasonInternal)
	}

	if !result.Allowed {
		decision := Rejected(ReasonRateLimited)
		decision.Limit = result.Limit
		decision.Remaining = 0
		decision.RetryAfter = result.RetryAfter
		decision.ResetAfter = result.ResetAfter
		return decision
	}

	principal := &Principal{
		OwnerID: record.OwnerID,
		TokenID: record.ID,
	}
	return Authenticated(principal, result.Limit, result.Remaining, result.ResetAfter)
}

// Quota returns the number of units consumed in the token's current window.
func (g *Gateway) Quota(ctx context.Context, tokenID string) (int64, error) {
	counterCtx, cancel := context.WithTimeout(ctx, g.config.CounterTimeout)
	defer cancel()
	return g.counter.Peek(counterCtx, counterKeyPrefix+tokenID, g.config.Window)
}

// ResetQuota discards the token's current window.
func (g *Gateway) ResetQuota(ctx context.Context, tokenID string) error {
	counterCtx, cancel := context.WithTimeout(ctx, g.config.CounterTimeout)
	defer cancel()
	return g.counter.Reset(counterCtx, counterKeyPrefix+tokenID, g.config.Window)
}

// putPositive and putNegative are best effort; a failed write only means
// the next request pays the store lookup again.
func (g *Gateway) putPositive(ctx context.Context, secret string, record *token.Record) {
	if g.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, g.config.CacheTimeout)
	defer cancel()
	if err := g.cache.PutPositive(cacheCtx, secret, record); err != nil {
		g.logger.Warn("cache write failed", observability.Error(err))
	}
}

func (g *Gateway) putNegative(ctx context.Context, secret string) {
	if g.cache == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, g.config.CacheTimeout)
	defer cancel()
	if err := g.cache.PutNegative(cacheCtx, secret); err != nil {
		g.logger.Warn("negative cache write failed", observability.Error(err))
	}
}
