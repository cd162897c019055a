// Package ratelimit provides fixed-window request counting for the token
// gateway. Windows are aligned to fixed boundaries: a window starting at t0
// covers [t0, t0+window). A request just past a boundary sees a fresh
// count, so up to twice the limit can pass across a boundary; that is the
// accepted cost of O(1) checks.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidLimit is returned when the limit or window is not positive.
var ErrInvalidLimit = errors.New("rate limit and window must be positive")

// DefaultWindow is the window size applied when none is configured.
const DefaultWindow = time.Minute

// Result is the outcome of an Acquire call.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the window's request ceiling.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long until the window resets. Zero when allowed.
	RetryAfter time.Duration

	// ResetAfter is how long until the window resets, set on every call.
	ResetAfter time.Duration
}

// Counter is a shared fixed-window request counter. Acquire must be a
// single atomic increment-and-compare: two concurrent calls for the same
// key can never both win the last unit. A rejected call consumes nothing.
type Counter interface {
	// Acquire counts one request against the key's current window.
	Acquire(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)

	// Peek returns the current window's count without counting anything.
	Peek(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset discards the current window for the key.
	Reset(ctx context.Context, key string, window time.Duration) error

	// Close releases backend resources.
	Close() error
}

// windowStart truncates t to the current window boundary.
func windowStart(t time.Time, window time.Duration) time.Time {
	n := window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/n)*n)
}
