package token

import (
	"context"
	"sync"
)

// Store is the system of record for token records. The gateway consumes
// only LookupBySecret; the remaining methods serve the Manager.
type Store interface {
	// LookupBySecret returns the record carrying the given secret, or
	// ErrNotFound.
	LookupBySecret(ctx context.Context, secret string) (*Record, error)

	// GetByID returns the record with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Record, error)

	// Create inserts a new record. Fails with ErrDuplicateSecret or
	// ErrDuplicateID on collision.
	Create(ctx context.Context, record *Record) error

	// Update replaces an existing record, keyed by ID.
	Update(ctx context.Context, record *Record) error

	// Delete removes the record with the given ID.
	Delete(ctx context.Context, id string) error

	// List returns all records.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	byID     map[string]*Record
	bySecret map[string]*Record

	// retired holds secrets of deleted or regenerated records so they are
	// never handed out again.
	retired map[string]struct{}

	mu sync.RWMutex
}

// NewMemoryStore creates a new in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Record),
		bySecret: make(map[string]*Record),
		retired:  make(map[string]struct{}),
	}
}

// LookupBySecret implements Store.
func (s *MemoryStore) LookupBySecret(_ context.Context, secret string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.bySecret[secret]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[record.ID]; exists {
		return ErrDuplicateID
	}
	if err := s.secretAvailable(record.Secret); err != nil {
		return err
	}

	clone := record.Clone()
	s.byID[clone.ID] = clone
	s.bySecret[clone.Secret] = clone
	return nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[record.ID]
	if !ok {
		return ErrNotFound
	}

	if record.Secret != existing.Secret {
		if err := s.secretAvailable(record.Secret); err != nil {
			return err
		}
		delete(s.bySecret, existing.Secret)
		s.retired[existing.Secret] = struct{}{}
	}

	clone := record.Clone()
	s.byID[clone.ID] = clone
	s.bySecret[clone.Secret] = clone
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.byID, id)
	delete(s.bySecret, record.Secret)
	s.retired[record.Secret] = struct{}{}
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.byID))
	for _, record := range s.byID {
		records = append(records, record.Clone())
	}
	return records, nil
}

// Replace swaps the full record set, used by seed-file reloads. Returns
// every secret whose previous record is gone or no longer identical, so
// the caller can invalidate cached entries. Secrets that merely changed
// policy stay live and are not retired.
func (s *MemoryStore) Replace(records []*Record) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*Record, len(records))
	nextSecrets := make(map[string]*Record, len(records))
	for _, record := range records {
		clone := record.Clone()
		next[clone.ID] = clone
		nextSecrets[clone.Secret] = clone
	}

	var stale []string
	for secret, old := range s.bySecret {
		replacement, kept := nextSecrets[secret]
		if !kept {
			stale = append(stale, secret)
			s.retired[secret] = struct{}{}
			continue
		}
		if !old.Equal(replacement) {
			stale = append(stale, secret)
		}
	}

	s.byID = next
	s.bySecret = nextSecrets
	return stale
}

// Count returns the number of records in the store.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// secretAvailable checks uniqueness against live and retired secrets.
// Caller must hold the write lock.
func (s *MemoryStore) secretAvailable(secret string) error {
	if _, live := s.bySecret[secret]; live {
		return ErrDuplicateSecret
	}
	if _, used := s.retired[secret]; used {
		return ErrDuplicateSecret
	}
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
