package keys

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces candidate key ids. Ids must be drawn from a
// cryptographically strong source; the Manager rejects collisions.
type IDGenerator interface {
	NewID() (string, error)
}

// IDGeneratorFunc adapts a function to IDGenerator
type IDGeneratorFunc func() (string, error)

func (f IDGeneratorFunc) NewID() (string, error) { return f() }

// DefaultIDLength is the width of generated ids: a full v4 UUID in hex.
const DefaultIDLength = 32

// UUIDGenerator renders random v4 UUIDs as uppercase hex, truncated to Length.
type UUIDGenerator struct {
	Length int
}

func (g UUIDGenerator) NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	id := strings.ToUpper(strings.ReplaceAll(u.String(), "-", ""))
	if g.Length > 0 && g.Length < len(id) {
		id = id[:g.Length]
	}
	return id, nil
}
