// Package token defines reseller API token records and their system of record.
package token

import (
	"strings"
	"time"
)

// DefaultRateLimit is the per-window request ceiling applied when a record
// does not carry one.
const DefaultRateLimit = 60

// Record is an issued API token and its access policy. The gateway only
// reads records; all mutations go through the Manager.
type Record struct {
	// ID is the opaque, immutable record identifier.
	ID string `yaml:"id" json:"id"`

	// OwnerID identifies the principal the token authenticates as.
	OwnerID string `yaml:"owner_id" json:"owner_id"`

	// Secret is the high-entropy credential value. Globally unique and
	// never reused; regeneration replaces it in place on the same record.
	Secret string `yaml:"secret" json:"-"`

	// AllowedAddresses restricts the client addresses that may use the
	// token. Empty means no restriction.
	AllowedAddresses []string `yaml:"allowed_addresses" json:"allowed_addresses,omitempty"`

	// RateLimit is the maximum number of requests per window. Always >= 1.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`

	// ExpiresAt is when the token stops authenticating. Nil means never.
	ExpiresAt *time.Time `yaml:"expires_at" json:"expires_at,omitempty"`

	// Active gates the token regardless of any other field.
	Active bool `yaml:"active" json:"active"`

	// CreatedAt is when the record was issued.
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// IsExpired returns true if the record has an expiry in the past.
func (r *Record) IsExpired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// IsValid reports whether the record can authenticate at the given time.
func (r *Record) IsValid(now time.Time) bool {
	return r.Active && !r.IsExpired(now)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	if r.AllowedAddresses != nil {
		out.AllowedAddresses = append([]string(nil), r.AllowedAddresses...)
	}
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}

// Equal reports whether two records carry the same identity and policy.
// Used by Replace to detect records edited in place across a seed reload.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if r.ID != other.ID || r.OwnerID != other.OwnerID || r.Secret != other.Secret {
		return false
	}
	if r.RateLimit != other.RateLimit || r.Active != other.Active {
		return false
	}
	if (r.ExpiresAt == nil) != (other.ExpiresAt == nil) {
		return false
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.Equal(*other.ExpiresAt) {
		return false
	}
	if len(r.AllowedAddresses) != len(other.AllowedAddresses) {
		return false
	}
	for i := range r.AllowedAddresses {
		if r.AllowedAddresses[i] != other.AllowedAddresses[i] {
			return false
		}
	}
	return true
}

// Normalize trims allowlist entries and drops empty ones, and floors the
// rate limit at 1.
func (r *Record) Normalize() {
	if len(r.AllowedAddresses) > 0 {
		cleaned := make([]string, 0, len(r.AllowedAddresses))
		for _, addr := range r.AllowedAddresses {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				cleaned = append(cleaned, addr)
			}
		}
		r.AllowedAddresses = cleaned
	}
	if r.RateLimit < 1 {
		r.RateLimit = DefaultRateLimit
	}
}
