package token

import (
	"context"
	"fmt"
	"time"

	"github.com/hostpanel/tokengate/internal/observability"
)

// Invalidator removes a cached token entry. Implemented by the token cache;
// declared here so the store side owns the invalidation contract.
type Invalidator interface {
	Invalidate(ctx context.Context, secret string) error
}

// Policy carries the mutable fields of a token record.
type Policy struct {
	AllowedAddresses []string
	RateLimit        int
	ExpiresAt        *time.Time
}

// Manager is the owning collaborator for token records. Every mutation it
// performs invalidates the corresponding cache entry so the gateway never
// serves a decision from a record it just changed. The cache is not
// self-healing against store writes; this ordering is the contract.
type Manager struct {
	store  Store
	cache  Invalidator
	logger observability.Logger
}

// ManagerOption is a functional option for the manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the manager.
func WithManagerLogger(logger observability.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new token manager.
func NewManager(store Store, cache Invalidator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		cache:  cache,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a new token record for the given owner and returns it with
// its freshly generated secret.
func (m *Manager) Issue(ctx context.Context, ownerID string, policy Policy) (*Record, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	record := &Record{
		ID:               NewID(),
		OwnerID:          ownerID,
		Secret:           secret,
		AllowedAddresses: policy.AllowedAddresses,
		RateLimit:        policy.RateLimit,
		ExpiresAt:        policy.ExpiresAt,
		Active:           true,
		CreatedAt:        time.Now(),
	}
	record.Normalize()

	if err := m.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	// A just-issued secret may sit in the negative cache from probe
	// requests; drop it so the token resolves immediately.
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token issued",
		observability.String("token_id", record.ID),
		observability.String("owner_id", record.OwnerID),
	)
	return record, nil
}

// UpdatePolicy replaces the allowlist, rate limit and expiry of a record.
func (m *Manager) UpdatePolicy(ctx context.Context, id string, policy Policy) (*Record, error) {
	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	record.AllowedAddresses = policy.AllowedAddresses
	record.RateLimit = policy.RateLimit
	record.ExpiresAt = policy.ExpiresAt
	record.Normalize()

	if err := m.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update token: %w", err)
	}
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token policy updated", observability.String("token_id", id))
	return record, nil
}

// Deactivate flips the active flag off. The token stops authenticating on
// the very next request once the cache entry is gone.
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	record.Active = false
	if err := m.store.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token deactivated", observability.String("token_id", id))
	return nil
}

// Activate flips the active flag on.
func (m *Manager) Activate(ctx context.Context, id string) error {
	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	record.Active = true
	if err := m.store.Update(ctx, record); err != nil {
		return fmt.Errorf("failed to activate token: %w", err)
	}
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token activated", observability.String("token_id", id))
	return nil
}

// Regenerate replaces the secret on an existing record and returns the
// updated record. The old secret is retired and never reused.
func (m *Manager) Regenerate(ctx context.Context, id string) (*Record, error) {
	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldSecret := record.Secret
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	record.Secret = secret

	if err := m.store.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to regenerate token secret: %w", err)
	}
	m.invalidate(ctx, oldSecret)
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token secret regenerated", observability.String("token_id", id))
	return record, nil
}

// Delete removes a record entirely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	m.invalidate(ctx, record.Secret)

	m.logger.Info("token deleted", observability.String("token_id", id))
	return nil
}

// InvalidateSecrets drops cache entries for the given secrets, used after
// bulk store replacements.
func (m *Manager) InvalidateSecrets(ctx context.Context, secrets []string) {
	for _, secret := range secrets {
		m.invalidate(ctx, secret)
	}
}

// invalidate drops one cache entry. Invalidation failure is logged, not
// returned: the entry still ages out by TTL, and the store write already
// happened.
func (m *Manager) invalidate(ctx context.Context, secret string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx, secret); err != nil {
		m.logger.Warn("failed to invalidate cached token", observability.Error(err))
	}
}
