// Package config provides configuration management for the token gateway.
package config

import (
	"fmt"
	"time"
)

// Backend names accepted for cache and rate-limit configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// TrustedProxies are proxy addresses whose X-Forwarded-For entries may
	// be walked past when resolving the client address. Empty means the
	// remote address is always used as-is.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TokensConfig holds token store settings.
type TokensConfig struct {
	// SeedFile is a YAML file of token records loaded into the store at
	// startup. Empty means the store starts empty.
	SeedFile string `yaml:"seedFile"`

	// WatchSeed reloads the seed file on change.
	WatchSeed bool `yaml:"watchSeed"`
}

// RedisConfig holds connection settings for a Redis backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds token-cache settings.
type CacheConfig struct {
	// Backend selects the cache implementation: memory or redis.
	Backend     string      `yaml:"backend"`
	PositiveTTL Duration    `yaml:"positiveTtl"`
	NegativeTTL Duration    `yaml:"negativeTtl"`
	Redis       RedisConfig `yaml:"redis"`
}

// RateLimitConfig holds rate-limit counter settings.
type RateLimitConfig struct {
	// Backend selects the counter implementation: memory or redis.
	Backend string      `yaml:"backend"`
	Window  Duration    `yaml:"window"`
	Redis   RedisConfig `yaml:"redis"`
}

// GatewayConfig holds per-step budgets of the authentication pipeline.
type GatewayConfig struct {
	CacheTimeout   Duration `yaml:"cacheTimeout"`
	StoreTimeout   Duration `yaml:"storeTimeout"`
	CounterTimeout Duration `yaml:"counterTimeout"`
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	// Enabled turns the admin endpoints on.
	Enabled bool `yaml:"enabled"`

	// Secret authenticates admin requests. Required when enabled.
	Secret string `yaml:"secret"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Backend:     BackendMemory,
			PositiveTTL: Duration(5 * time.Minute),
			NegativeTTL: Duration(30 * time.Second),
			Redis:       RedisConfig{Address: "localhost:6379"},
		},
		RateLimit: RateLimitConfig{
			Backend: BackendMemory,
			Window:  Duration(time.Minute),
			Redis:   RedisConfig{Address: "localhost:6379"},
		},
		Gateway: GatewayConfig{
			CacheTimeout:   Duration(500 * time.Millisecond),
			StoreTimeout:   Duration(2 * time.Second),
			CounterTimeout: Duration(time.Second),
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validatePort(c.Server.Port, "server.port"); err != nil {
		return err
	}
	if err := validateBackend(c.Cache.Backend, "cache.backend"); err != nil {
		return err
	}
	if err := validateBackend(c.RateLimit.Backend, "rateLimit.backend"); err != nil {
		return err
	}
	if c.Cache.Backend == BackendRedis && c.Cache.Redis.Address == "" {
		return fmt.Errorf("cache.redis.address is required for the redis backend")
	}
	if c.RateLimit.Backend == BackendRedis && c.RateLimit.Redis.Address == "" {
		return fmt.Errorf("rateLimit.redis.address is required for the redis backend")
	}
	if c.RateLimit.Window.Duration() < 0 {
		return fmt.Errorf("rateLimit.window must not be negative")
	}
	if c.Admin.Enabled && c.Admin.Secret == "" {
		return fmt.Errorf("admin.secret is required when admin endpoints are enabled")
	}
	return nil
}

func validatePort(port int, name string) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func validateBackend(backend, name string) error {
	switch backend {
	case BackendMemory, BackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", name, BackendMemory, BackendRedis, backend)
	}
}
