package store

import (
	"fmt"

	"keyforge/internal/keys"
	"keyforge/pkg/contracts/domain"
)

// codec turns collections into stored bytes, sealing them when configured.
// Plain documents are still readable with a sealer so existing files migrate
// on their next save.
type codec struct {
	sealer *Sealer
}

func (c codec) encode(col *domain.KeyCollection) ([]byte, error) {
	data, err := keys.Encode(col)
	if err != nil {
		return nil, fmt.Errorf("encode key document: %w", err)
	}
	if c.sealer == nil {
		return data, nil
	}
	return c.sealer.Seal(data)
}

func (c codec) decode(data []byte) (*domain.KeyCollection, error) {
	if isSealed(data) {
		if c.sealer == nil {
			return nil, fmt.Errorf("%w: no passphrase configured", ErrSealed)
		}
		plain, err := c.sealer.Open(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return keys.Decode(data)
}
