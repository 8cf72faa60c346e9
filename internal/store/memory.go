package store

import (
	"bytes"
	"context"
	"sync"

	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
)

// MemoryStore keeps the serialized document in memory. It is used by tests
// and by the memory backend; every Load decodes a fresh copy so callers never
// share state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	loads int

	// LoadErr and SaveErr, when set, are returned instead of doing the work.
	LoadErr error
	SaveErr error
}

// NewMemoryStore returns an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFrom returns a store pre-loaded with c
func NewMemoryStoreFrom(c *domain.KeyCollection) (*MemoryStore, error) {
	data, err := keys.Encode(c)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{data: data}, nil
}

func (s *MemoryStore) Load(ctx context.Context) (*domain.KeyCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	if s.LoadErr != nil {
		return nil, keys.NewStorageError("load", s.LoadErr)
	}
	return keys.Decode(s.data)
}

func (s *MemoryStore) Save(ctx context.Context, c *domain.KeyCollection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := keys.Encode(c)
	if err != nil {
		return keys.NewStorageError("save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return keys.NewStorageError("save", s.SaveErr)
	}
	s.data = data
	s.saves++
	return nil
}

// Bytes returns a copy of the stored document
func (s *MemoryStore) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.data)
}

// Saves reports how many times Save succeeded
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Loads reports how many times Load was called
func (s *MemoryStore) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}
