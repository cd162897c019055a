// Package tokencache provides the lookup cache sitting between the
// authentication gateway and the token store. It is a pure performance
// layer: losing it changes latency, never outcomes. Entries are invalidated
// by the token-owning collaborator on every policy mutation; the cache does
// not watch the store.
package tokencache

import (
	"context"
	"errors"
	"time"

	"github.com/hostpanel/tokengate/internal/token"
)

// Default TTLs. Negative entries are kept short so a just-issued secret
// becomes resolvable without a flush.
const (
	DefaultPositiveTTL = 5 * time.Minute
	DefaultNegativeTTL = 30 * time.Second
	MaxNegativeTTL     = time.Minute
)

// Common cache errors.
var (
	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache backend is unreachable.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// ResultKind classifies a cache lookup.
type ResultKind int

const (
	// Miss means the cache holds nothing for the secret.
	Miss ResultKind = iota

	// Hit means the cache holds a token record for the secret.
	Hit

	// NegativeHit means the cache holds a "does not resolve" marker for
	// the secret. It is never a valid record.
	NegativeHit
)

// String returns the string representation of the result kind.
func (k ResultKind) String() string {
	switch k {
	case Hit:
		return "hit"
	case NegativeHit:
		return "negative_hit"
	default:
		return "miss"
	}
}

// Result is the outcome of a cache lookup. Record is non-nil only for Hit.
type Result struct {
	Kind   ResultKind
	Record *token.Record
}

// Cache maps token secrets to their records.
type Cache interface {
	// Get looks up a secret. A backend failure is returned as an error;
	// callers degrade it to a miss.
	Get(ctx context.Context, secret string) (Result, error)

	// PutPositive stores a resolved record under its secret.
	PutPositive(ctx context.Context, secret string, record *token.Record) error

	// PutNegative stores a "does not resolve" marker for the secret.
	PutNegative(ctx context.Context, secret string) error

	// Invalidate removes any entry for the secret.
	Invalidate(ctx context.Context, secret string) error

	// Close releases backend resources.
	Close() error
}

// Config holds cache tuning.
type Config struct {
	PositiveTTL time.Duration
	NegativeTTL time.Duration
}

// DefaultConfig returns a Config with default TTLs.
func DefaultConfig() Config {
	return Config{
		PositiveTTL: DefaultPositiveTTL,
		NegativeTTL: DefaultNegativeTTL,
	}
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.PositiveTTL <= 0 {
		c.PositiveTTL = DefaultPositiveTTL
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	if c.NegativeTTL > MaxNegativeTTL {
		return ErrInvalidConfig
	}
	return nil
}
