package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, BackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window.Duration())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "unknown cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "cache.backend",
		},
		{
			name:    "unknown ratelimit backend",
			mutate:  func(c *Config) { c.RateLimit.Backend = "" },
			wantErr: "rateLimit.backend",
		},
		{
			name: "redis cache without address",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendRedis
				c.Cache.Redis.Address = ""
			},
			wantErr: "cache.redis.address",
		},
		{
			name: "redis ratelimit without address",
			mutate: func(c *Config) {
				c.RateLimit.Backend = BackendRedis
				c.RateLimit.Redis.Address = ""
			},
			wantErr: "rateLimit.redis.address",
		},
		{
			name: "admin enabled without secret",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
			},
			wantErr: "admin.secret",
		},
		{
			name: "admin enabled with secret",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Secret = "hunter2"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
