package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpanel/tokengate/internal/ratelimit"
	"github.com/hostpanel/tokengate/internal/token"
	"github.com/hostpanel/tokengate/internal/tokencache"
)

func newTestGateway(t *testing.T, opts ...Option) (*Gateway, *token.MemoryStore) {
	t.Helper()

	store := token.NewMemoryStore()
	counter := ratelimit.NewMemoryCounter()
	t.Cleanup(func() { _ = counter.Close() })

	gw, err := New(DefaultConfig(), store, counter, opts...)
	require.NoError(t, err)
	return gw, store
}

func newTestCache(t *testing.T) *tokencache.MemoryCache {
	t.Helper()

	cache, err := tokencache.NewMemoryCache(tokencache.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func seedToken(t *testing.T, store *token.MemoryStore, record *token.Record) *token.Record {
	t.Helper()

	record.Normalize()
	require.NoError(t, store.Create(context.Background(), record))
	return record
}

func validRecord(secret string) *token.Record {
	return &token.Record{
		ID:        "tok-1",
		OwnerID:   "owner-1",
		Secret:    secret,
		RateLimit: 5,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestNew_RequiresStoreAndCounter(t *testing.T) {
	counter := ratelimit.NewMemoryCounter()
	defer counter.Close()

	_, err := New(DefaultConfig(), nil, counter)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(DefaultConfig(), token.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAuthenticate_MissingCredential(t *testing.T) {
	gw, _ := newTestGateway(t)

	decision := gw.Authenticate(context.Background(), "", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonMissingCredential, decision.Reason)
	assert.Nil(t, decision.Principal)
}

func TestAuthenticate_UnknownCredential(t *testing.T) {
	gw, _ := newTestGateway(t)

	decision := gw.Authenticate(context.Background(), "tg_unknown", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
}

func TestAuthenticate_Success(t *testing.T) {
	gw, store := newTestGateway(t)
	seedToken(t, store, validRecord("tg_secret"))

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	require.True(t, decision.Authenticated)
	require.NotNil(t, decision.Principal)
	assert.Equal(t, "owner-1", decision.Principal.OwnerID)
	assert.Equal(t, "tok-1", decision.Principal.TokenID)
	assert.Equal(t, 5, decision.Limit)
	assert.Equal(t, 4, decision.Remaining)
}

func TestAuthenticate_InactiveLooksLikeUnknown(t *testing.T) {
	gw, store := newTestGateway(t)
	record := validRecord("tg_secret")
	record.Active = false
	seedToken(t, store, record)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	unknown := gw.Authenticate(context.Background(), "tg_unknown", "203.0.113.5")

	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
	assert.Equal(t, unknown.Reason, decision.Reason)
}

func TestAuthenticate_ExpiredLooksLikeUnknown(t *testing.T) {
	gw, store := newTestGateway(t)
	expired := time.Now().Add(-time.Hour)
	record := validRecord("tg_secret")
	record.ExpiresAt = &expired
	seedToken(t, store, record)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
}

func TestAuthenticate_ExpiryBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw, store := newTestGateway(t, WithClock(func() time.Time { return now }))

	record := validRecord("tg_secret")
	expiresAt := now
	record.ExpiresAt = &expiresAt
	seedToken(t, store, record)

	// Expiry exactly now means expired.
	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
}

func TestAuthenticate_AllowlistEnforced(t *testing.T) {
	gw, store := newTestGateway(t)
	record := validRecord("tg_secret")
	record.AllowedAddresses = []string{"203.0.113.5", "198.51.100.7"}
	seedToken(t, store, record)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.True(t, decision.Authenticated)

	decision = gw.Authenticate(context.Background(), "tg_secret", "203.0.113.6")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonForbiddenSource, decision.Reason)
}

func TestAuthenticate_EmptyAllowlistAllowsAnySource(t *testing.T) {
	gw, store := newTestGateway(t)
	seedToken(t, store, validRecord("tg_secret"))

	decision := gw.Authenticate(context.Background(), "tg_secret", "192.0.2.200")
	assert.True(t, decision.Authenticated)
}

func TestAuthenticate_ForbiddenSourceConsumesNoQuota(t *testing.T) {
	gw, store := newTestGateway(t)
	record := validRecord("tg_secret")
	record.AllowedAddresses = []string{"203.0.113.5"}
	seedToken(t, store, record)

	for i := 0; i < 10; i++ {
		decision := gw.Authenticate(context.Background(), "tg_secret", "192.0.2.200")
		require.Equal(t, ReasonForbiddenSource, decision.Reason)
	}

	count, err := gw.Quota(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestAuthenticate_RateLimitSequence(t *testing.T) {
	gw, store := newTestGateway(t)
	seedToken(t, store, validRecord("tg_secret"))

	for want := 4; want >= 0; want-- {
		decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
		require.True(t, decision.Authenticated)
		assert.Equal(t, want, decision.Remaining)
	}

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonRateLimited, decision.Reason)
	assert.Equal(t, 5, decision.Limit)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, gw.Window())
}

func TestAuthenticate_RejectedRequestsDoNotExtendLimit(t *testing.T) {
	gw, store := newTestGateway(t)
	record := validRecord("tg_secret")
	seedToken(t, store, record)

	for i := 0; i < 5; i++ {
		require.True(t, gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5").Authenticated)
	}
	for i := 0; i < 20; i++ {
		decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
		require.Equal(t, ReasonRateLimited, decision.Reason)
	}

	count, err := gw.Quota(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestAuthenticate_ConcurrentRequestsNeverOversell(t *testing.T) {
	gw, store := newTestGateway(t)
	seedToken(t, store, validRecord("tg_secret"))

	const concurrent = 50

	var authenticated atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5").Authenticated {
				authenticated.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int64(5), authenticated.Load())
}

func TestAuthenticate_CacheDoesNotChangeOutcomes(t *testing.T) {
	cache := newTestCache(t)
	gw, store := newTestGateway(t, WithCache(cache))
	seedToken(t, store, validRecord("tg_secret"))

	// First call resolves through the store, second through the cache.
	first := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	second := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")

	require.True(t, first.Authenticated)
	require.True(t, second.Authenticated)
	assert.Equal(t, first.Principal, second.Principal)
	assert.Equal(t, first.Remaining-1, second.Remaining)
}

func TestAuthenticate_NegativeCacheServesRepeatedMisses(t *testing.T) {
	cache := newTestCache(t)
	gw, _ := newTestGateway(t, WithCache(cache))

	first := gw.Authenticate(context.Background(), "tg_unknown", "203.0.113.5")
	require.Equal(t, ReasonInvalidCredential, first.Reason)

	// The miss is now cached; the outcome stays identical.
	second := gw.Authenticate(context.Background(), "tg_unknown", "203.0.113.5")
	assert.Equal(t, ReasonInvalidCredential, second.Reason)
	assert.Equal(t, 1, cache.Size())
}

func TestAuthenticate_CacheFailureDegradesToStore(t *testing.T) {
	gw, store := newTestGateway(t, WithCache(&failingCache{}))
	seedToken(t, store, validRecord("tg_secret"))

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.True(t, decision.Authenticated)
}

func TestAuthenticate_StoreFailureFailsClosed(t *testing.T) {
	counter := ratelimit.NewMemoryCounter()
	defer counter.Close()

	gw, err := New(DefaultConfig(), &failingStore{}, counter)
	require.NoError(t, err)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInternal, decision.Reason)
}

func TestAuthenticate_CounterFailureFailsClosed(t *testing.T) {
	store := token.NewMemoryStore()
	seedToken(t, store, validRecord("tg_secret"))

	gw, err := New(DefaultConfig(), store, &failingCounter{})
	require.NoError(t, err)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInternal, decision.Reason)
}

func TestAuthenticate_DeactivationVisibleAfterInvalidation(t *testing.T) {
	cache := newTestCache(t)
	gw, store := newTestGateway(t, WithCache(cache))
	manager := token.NewManager(store, cache)

	record, err := manager.Issue(context.Background(), "owner-1", token.Policy{RateLimit: 5})
	require.NoError(t, err)

	decision := gw.Authenticate(context.Background(), record.Secret, "203.0.113.5")
	require.True(t, decision.Authenticated)

	require.NoError(t, manager.Deactivate(context.Background(), record.ID))

	decision = gw.Authenticate(context.Background(), record.Secret, "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
}

func TestAuthenticate_SeedReloadDeactivationVisibleAfterInvalidation(t *testing.T) {
	cache := newTestCache(t)
	gw, store := newTestGateway(t, WithCache(cache))
	manager := token.NewManager(store, cache)

	record := seedToken(t, store, validRecord("tg_secret"))
	require.True(t, gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5").Authenticated)

	// A seed reload swaps in the same secret with the record deactivated,
	// as a reload closure does: Replace, then invalidate what it reports.
	deactivated := record.Clone()
	deactivated.Active = false
	stale := store.Replace([]*token.Record{deactivated})
	require.NotEmpty(t, stale)
	manager.InvalidateSecrets(context.Background(), stale)

	decision := gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5")
	assert.False(t, decision.Authenticated)
	assert.Equal(t, ReasonInvalidCredential, decision.Reason)
}

func TestQuotaAndReset(t *testing.T) {
	gw, store := newTestGateway(t)
	record := validRecord("tg_secret")
	seedToken(t, store, record)

	for i := 0; i < 3; i++ {
		require.True(t, gw.Authenticate(context.Background(), "tg_secret", "203.0.113.5").Authenticated)
	}

	count, err := gw.Quota(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, gw.ResetQuota(context.Background(), record.ID))

	count, err = gw.Quota(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// failingCache errors on every operation.
type failingCache struct{}

func (f *failingCache) Get(context.Context, string) (tokencache.Result, error) {
	return tokencache.Result{}, errors.New("cache down")
}

func (f *failingCache) PutPositive(context.Context, string, *token.Record) error {
	return errors.New("cache down")
}

func (f *failingCache) PutNegative(context.Context, string) error { return errors.New("cache down") }
func (f *failingCache) Invalidate(context.Context, string) error  { return errors.New("cache down") }
func (f *failingCache) Close() error                              { return nil }

// failingStore errors on every operation.
type failingStore struct{}

func (f *failingStore) LookupBySecret(context.Context, string) (*token.Record, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) GetByID(context.Context, string) (*token.Record, error) {
	return nil, errors.New("store down")
}

func (f *failingStore) Create(context.Context, *token.Record) error { return errors.New("store down") }
func (f *failingStore) Update(context.Context, *token.Record) error { return errors.New("store down") }
func (f *failingStore) Delete(context.Context, string) error        { return errors.New("store down") }
func (f *failingStore) List(context.Context) ([]*token.Record, error) {
	return nil, errors.New("store down")
}

// failingCounter errors on every operation.
type failingCounter struct{}

func (f *failingCounter) Acquire(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("counter down")
}

func (f *failingCounter) Peek(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("counter down")
}

func (f *failingCounter) Reset(context.Context, string, time.Duration) error {
	return errors.New("counter down")
}

func (f *failingCounter) Close() error { return nil }
