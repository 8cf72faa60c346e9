package keys

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"keyforge/pkg/contracts/domain"
)

// Store persists the whole key collection. Save must replace the document
// atomically: a concurrent Load never observes a partial write.
type Store interface {
	// Load returns the persisted collection, or an empty one when nothing
	// has been written yet.
	Load(ctx context.Context) (*domain.KeyCollection, error)
	Save(ctx context.Context, c *domain.KeyCollection) error
}

// Encode renders the collection in the on-disk document format.
func Encode(c *domain.KeyCollection) ([]byte, error) {
	doc := domain.KeyCollection{Keys: []domain.KeyRecord{}}
	if c != nil && c.Keys != nil {
		doc.Keys = c.Keys
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a document. Empty input yields an empty collection.
func Decode(data []byte) (*domain.KeyCollection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &domain.KeyCollection{Keys: []domain.KeyRecord{}}, nil
	}
	var c domain.KeyCollection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode key document: %w", err)
	}
	if c.Keys == nil {
		c.Keys = []domain.KeyRecord{}
	}
	seen := make(map[string]struct{}, len(c.Keys))
	for _, rec := range c.Keys {
		if rec.ID == "" {
			return nil, fmt.Errorf("decode key document: record without key")
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("decode key document: duplicate key %s", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return &c, nil
}

func indexOf(c *domain.KeyCollection, id string) int {
	for i := range c.Keys {
		if c.Keys[i].ID == id {
			return i
		}
	}
	return -1
}
