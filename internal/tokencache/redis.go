package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hostpanel/tokengate/internal/observability"
	"github.com/hostpanel/tokengate/internal/token"
)

// RedisConfig holds configuration for the redis-backed token cache.
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
		Prefix:       "tokencache:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// redisEnvelope is the stored payload. Negative entries carry no record.
type redisEnvelope struct {
	Negative bool          `json:"negative,omitempty"`
	Record   *token.Record `json:"record,omitempty"`
}

// RedisCache is a redis-backed implementation of Cache shared across
// gateway instances.
type RedisCache struct {
	config  Config
	client  *redis.Client
	prefix  string
	logger  observability.Logger
	metrics *Metrics
}

// RedisCacheOption is a functional option for the redis cache.
type RedisCacheOption func(*RedisCache)

// WithRedisCacheLogger sets the logger for the redis cache.
func WithRedisCacheLogger(logger observability.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// WithRedisCacheMetrics sets the metrics for the redis cache.
func WithRedisCacheMetrics(metrics *Metrics) RedisCacheOption {
	return func(c *RedisCache) {
		c.metrics = metrics
	}
}

// NewRedisCache creates a new redis-backed token cache and verifies the
// connection.
func NewRedisCache(config Config, redisConfig *RedisConfig, opts ...RedisCacheOption) (*RedisCache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if redisConfig == nil {
		redisConfig = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Address,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConns,
		MaxRetries:   redisConfig.MaxRetries,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConfig.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c := &RedisCache{
		config: config,
		client: client,
		prefix: redisConfig.Prefix,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics("redis")
	}

	return c, nil
}

// prefixKey adds the prefix to the secret.
func (c *RedisCache) prefixKey(secret string) string {
	return c.prefix + secret
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, secret string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Kind: Miss}, fmt.Errorf("context error before cache get: %w", err)
	}

	payload, err := c.client.Get(ctx, c.prefixKey(secret)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.RecordLookup(Miss)
		return Result{Kind: Miss}, nil
	}
	if err != nil {
		c.metrics.RecordError("get")
		return Result{Kind: Miss}, fmt.Errorf("cache get error: %w", err)
	}

	var envelope redisEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		c.metrics.RecordError("decode")
		c.logger.Warn("dropping undecodable cache entry", observability.Error(err))
		_ = c.client.Del(ctx, c.prefixKey(secret)).Err()
		return Result{Kind: Miss}, nil
	}

	if envelope.Negative || envelope.Record == nil {
		c.metrics.RecordLookup(NegativeHit)
		return Result{Kind: NegativeHit}, nil
	}

	c.metrics.RecordLookup(Hit)
	return Result{Kind: Hit, Record: envelope.Record}, nil
}

// PutPositive implements Cache.
func (c *RedisCache) PutPositive(ctx context.Context, secret string, record *token.Record) error {
	return c.put(ctx, secret, &redisEnvelope{Record: record}, c.config.PositiveTTL)
}

// PutNegative implements Cache.
func (c *RedisCache) PutNegative(ctx context.Context, secret string) error {
	return c.put(ctx, secret, &redisEnvelope{Negative: true}, c.config.NegativeTTL)
}

func (c *RedisCache) put(ctx context.Context, secret string, envelope *redisEnvelope, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before cache set: %w", err)
	}

	payload, err := marshalEnvelope(envelope)
	if err != nil {
		c.metrics.RecordError("encode")
		return err
	}

	if err := c.client.Set(ctx, c.prefixKey(secret), payload, ttl).Err(); err != nil {
		c.metrics.RecordError("set")
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

// marshalEnvelope encodes an envelope. The record's json tags keep the
// secret itself out of the payload; the key already carries it.
func marshalEnvelope(envelope *redisEnvelope) ([]byte, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return payload, nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context, secret string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before cache del: %w", err)
	}

	if err := c.client.Del(ctx, c.prefixKey(secret)).Err(); err != nil {
		c.metrics.RecordError("delete")
		return fmt.Errorf("cache del error: %w", err)
	}
	c.metrics.RecordInvalidation()
	return nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying redis client, used by health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Ensure RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
