package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInvalidator captures invalidated secrets.
type recordingInvalidator struct {
	mu      sync.Mutex
	secrets []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, secret)
	return nil
}

func (r *recordingInvalidator) invalidated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.secrets...)
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *recordingInvalidator) {
	t.Helper()
	store := NewMemoryStore()
	inv := &recordingInvalidator{}
	return NewManager(store, inv), store, inv
}

func TestManager_Issue(t *testing.T) {
	ctx := context.Background()
	mgr, store, inv := newTestManager(t)

	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5})
	require.NoError(t, err)
	assert.True(t, record.Active)
	assert.Equal(t, 5, record.RateLimit)
	assert.NotEmpty(t, record.Secret)

	got, err := store.LookupBySecret(ctx, record.Secret)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	// Negative-cache entry for the new secret is dropped at issuance.
	assert.Contains(t, inv.invalidated(), record.Secret)
}

func TestManager_UpdatePolicyInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mgr, _, inv := newTestManager(t)

	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5})
	require.NoError(t, err)

	updated, err := mgr.UpdatePolicy(ctx, record.ID, Policy{
		AllowedAddresses: []string{"203.0.113.5"},
		RateLimit:        20,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.RateLimit)
	assert.Equal(t, []string{"203.0.113.5"}, updated.AllowedAddresses)

	assert.GreaterOrEqual(t, countOf(inv.invalidated(), record.Secret), 2)
}

func TestManager_Deactivate(t *testing.T) {
	ctx := context.Background()
	mgr, store, inv := newTestManager(t)

	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5})
	require.NoError(t, err)
	require.NoError(t, mgr.Deactivate(ctx, record.ID))

	got, err := store.LookupBySecret(ctx, record.Secret)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.GreaterOrEqual(t, countOf(inv.invalidated(), record.Secret), 2)

	require.NoError(t, mgr.Activate(ctx, record.ID))
	got, err = store.LookupBySecret(ctx, record.Secret)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestManager_RegenerateInvalidatesBothSecrets(t *testing.T) {
	ctx := context.Background()
	mgr, store, inv := newTestManager(t)

	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5})
	require.NoError(t, err)
	oldSecret := record.Secret

	updated, err := mgr.Regenerate(ctx, record.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldSecret, updated.Secret)
	assert.Equal(t, record.ID, updated.ID)

	_, err = store.LookupBySecret(ctx, oldSecret)
	assert.ErrorIs(t, err, ErrNotFound)

	invalidated := inv.invalidated()
	assert.Contains(t, invalidated, oldSecret)
	assert.Contains(t, invalidated, updated.Secret)
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	mgr, store, inv := newTestManager(t)

	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5})
	require.NoError(t, err)
	require.NoError(t, mgr.Delete(ctx, record.ID))

	_, err = store.LookupBySecret(ctx, record.Secret)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.GreaterOrEqual(t, countOf(inv.invalidated(), record.Secret), 2)

	assert.ErrorIs(t, mgr.Delete(ctx, record.ID), ErrNotFound)
}

func TestManager_IssueWithExpiry(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := newTestManager(t)

	expires := time.Now().Add(time.Hour)
	record, err := mgr.Issue(ctx, "reseller-1", Policy{RateLimit: 5, ExpiresAt: &expires})
	require.NoError(t, err)
	require.NotNil(t, record.ExpiresAt)
	assert.WithinDuration(t, expires, *record.ExpiresAt, time.Second)
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}
