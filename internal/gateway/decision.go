// Package gateway authenticates inbound API requests: it resolves a bearer
// credential to a token record through the cache and store, enforces the
// record's address allowlist, and charges the request against its rate
// limit. Every request ends in exactly one terminal Decision.
package gateway

import "time"

// Reason classifies why a request was rejected.
type Reason string

// Rejection reasons. Unknown, inactive and expired tokens all collapse to
// ReasonInvalidCredential so callers cannot probe which secrets exist.
const (
	ReasonMissingCredential Reason = "missing_credential"
	ReasonInvalidCredential Reason = "invalid_credential"
	ReasonForbiddenSource   Reason = "forbidden_source"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonInternal          Reason = "internal_error"
)

// Principal is the identity handed to downstream business logic. It never
// carries the raw token record.
type Principal struct {
	// OwnerID is the identity the token authenticates as.
	OwnerID string

	// TokenID identifies the token used, for audit trails.
	TokenID string
}

// Decision is the terminal outcome of authenticating one request.
type Decision struct {
	// Authenticated is true only when every check passed.
	Authenticated bool

	// Reason is set on rejection.
	Reason Reason

	// Principal is set on success.
	Principal *Principal

	// Limit is the token's per-window ceiling, set whenever the rate
	// limit was consulted.
	Limit int

	// Remaining is the quota left in the current window.
	Remaining int

	// RetryAfter is how long to wait before retrying, set on
	// ReasonRateLimited.
	RetryAfter time.Duration

	// ResetAfter is how long until the current window resets.
	ResetAfter time.Duration
}

// Rejected builds a rejection decision.
func Rejected(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Authenticated builds a success decision.
func Authenticated(principal *Principal, limit, remaining int, resetAfter time.Duration) Decision {
	return Decision{
		Authenticated: true,
		Principal:     principal,
		Limit:         limit,
		Remaining:     remaining,
		ResetAfter:    resetAfter,
	}
}
