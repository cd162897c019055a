package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hostpanel/tokengate/internal/circuitbreaker"
	"github.com/hostpanel/tokengate/internal/observability"
)

// ErrCounterUnavailable indicates the counter backend is unreachable. The
// gateway fails closed on it; there is deliberately no local fallback,
// which would let each instance grant a full quota of its own.
var ErrCounterUnavailable = errors.New("rate limit counter unavailable")

// acquireScript performs the atomic increment-and-compare. The pre-increment
// count is compared against the limit inside the script, so a rejected
// request never consumes a unit and two racing requests can never both take
// the last one.
// KEYS[1] = counter key (un-windowed)
// ARGV[1] = limit, ARGV[2] = window in ms, ARGV[3] = now in ms
// Returns: [allowed (0 or 1), count, reset_ms]
var acquireScript = redis.NewScript(`
	local limit = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local window_start = math.floor(now / window_ms) * window_ms
	local window_key = KEYS[1] .. ':' .. window_start

	local count = tonumber(redis.call('GET', window_key) or '0')

	local allowed = 0
	if count < limit then
		count = redis.call('INCR', window_key)
		if count == 1 then
			redis.call('PEXPIRE', window_key, window_ms + 1000)
		end
		allowed = 1
	end

	local reset_ms = window_start + window_ms - now

	return {allowed, count, reset_ms}
`)

// RedisConfig holds configuration for the redis-backed counter.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "ratelimit:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// RedisCounter is a redis-backed implementation of Counter shared across
// gateway instances. A circuit breaker fails fast while redis is down.
type RedisCounter struct {
	client  *redis.Client
	prefix  string
	breaker *circuitbreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// RedisCounterOption is a functional option for the redis counter.
type RedisCounterOption func(*RedisCounter)

// WithRedisCounterLogger sets the logger for the redis counter.
func WithRedisCounterLogger(logger observability.Logger) RedisCounterOption {
	return func(c *RedisCounter) {
		c.logger = logger
	}
}

// WithRedisCounterBreaker sets the circuit breaker for the redis counter.
func WithRedisCounterBreaker(breaker *circuitbreaker.CircuitBreaker) RedisCounterOption {
	return func(c *RedisCounter) {
		c.breaker = breaker
	}
}

// NewRedisCounter creates a new redis-backed counter and verifies the
// connection.
func NewRedisCounter(config *RedisConfig, opts ...RedisCounterOption) (*RedisCounter, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	c := &RedisCounter{
		client:  client,
		prefix:  config.Prefix,
		logger:  observability.NopLogger(),
		metrics: NewMetrics("redis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.NewCircuitBreaker("ratelimit-redis", nil, c.logger)
	}

	return c, nil
}

// prefixKey adds the prefix to the key.
func (c *RedisCounter) prefixKey(key string) string {
	return c.prefix + key
}

// Acquire implements Counter.
func (c *RedisCounter) Acquire(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if limit < 1 || window <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before acquire: %w", err)
	}

	var raw interface{}
	err := c.breaker.Execute(ctx, func() error {
		var scriptErr error
		raw, scriptErr = acquireScript.Run(ctx, c.client,
			[]string{c.prefixKey(key)},
			limit,
			window.Milliseconds(),
			time.Now().UnixMilli(),
		).Result()
		return scriptErr
	})
	if err != nil {
		c.metrics.RecordError()
		return nil, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	result, err := parseAcquireResult(raw, limit)
	if err != nil {
		c.metrics.RecordError()
		return nil, err
	}

	c.metrics.RecordAcquire(result.Allowed)
	return result, nil
}

// parseAcquireResult parses the [allowed, count, reset_ms] script reply.
func parseAcquireResult(raw interface{}, limit int) (*Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected acquire script result: %v", raw)
	}

	allowed := asInt64(values[0]) == 1
	count := asInt64(values[1])
	resetMs := asInt64(values[2])

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := time.Duration(resetMs) * time.Millisecond
	result := &Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !allowed {
		result.RetryAfter = resetAfter
	}
	return result, nil
}

// asInt64 coerces a script reply element to int64.
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

// Peek implements Counter.
func (c *RedisCounter) Peek(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before peek: %w", err)
	}

	val, err := c.client.Get(ctx, c.windowKey(key, window)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter value: %w", err)
	}
	return count, nil
}

// Reset implements Counter.
func (c *RedisCounter) Reset(ctx context.Context, key string, window time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before reset: %w", err)
	}

	if err := c.client.Del(ctx, c.windowKey(key, window)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}

// windowKey builds the current window's storage key, matching the layout
// used inside the acquire script.
func (c *RedisCounter) windowKey(key string, window time.Duration) string {
	start := windowStart(time.Now(), window).UnixMilli()
	return fmt.Sprintf("%s%s:%d", c.prefix, key, start)
}

// Close implements Counter.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Client returns the underlying redis client, used by health checks.
func (c *RedisCounter) Client() *redis.Client {
	return c.client
}

// Ensure RedisCounter implements Counter.
var _ Counter = (*RedisCounter)(nil)
