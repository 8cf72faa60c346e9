package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"keyforge/pkg/contracts/domain"
)

// Fixed values shared by fixture records
var (
	FixtureNow  = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	FixtureHWID = "HWID-7F3A-0001"
)

// LegacyKeysDocument is a keys file written without zone offsets and with
// defaulted fields omitted.
const LegacyKeysDocument = `{
  "keys": [
    {"key": "A1B2C3D4E5F6", "created": "2024-01-05T10:00:00.123456", "hwid": null},
    {"key": "0F1E2D3C4B5A", "created": "2024-01-06T08:30:00", "hwid": "HWID-LEGACY", "hwid_resets": 2},
    {"key": "FFEE00112233", "created": "2024-02-01T00:00:00", "type": "temporary",
     "expiresAt": "2024-02-01T01:00:00", "expiresInMinutes": 60, "hwid": null, "active": false}
  ]
}`

// KeyFixtures builds key records anchored at FixtureNow
type KeyFixtures struct {
	Now time.Time
}

// NewKeyFixtures creates a fixtures builder
func NewKeyFixtures() *KeyFixtures {
	return &KeyFixtures{Now: FixtureNow}
}

// Permanent returns an unbound active permanent key
func (f *KeyFixtures) Permanent(id string) domain.KeyRecord {
	return domain.KeyRecord{
		ID:        id,
		CreatedAt: f.Now,
		Kind:      domain.KeyKindPermanent,
		Active:    true,
	}
}

// Bound returns a permanent key bound to hwid
func (f *KeyFixtures) Bound(id, hwid string) domain.KeyRecord {
	rec := f.Permanent(id)
	rec.HWID = &hwid
	return rec
}

// Temporary returns a temporary key expiring ttl after Now
func (f *KeyFixtures) Temporary(id string, ttl time.Duration) domain.KeyRecord {
	exp := f.Now.Add(ttl)
	minutes := int(ttl / time.Minute)
	return domain.KeyRecord{
		ID:               id,
		CreatedAt:        f.Now,
		Kind:             domain.KeyKindTemporary,
		Active:           true,
		ExpiresAt:        &exp,
		ExpiresInMinutes: &minutes,
	}
}

// Revoked returns a permanent key revoked at Now
func (f *KeyFixtures) Revoked(id string) domain.KeyRecord {
	rec := f.Permanent(id)
	rec.Active = false
	at := f.Now
	rec.RevokedAt = &at
	return rec
}

// Collection returns one record in each interesting state:
// unbound, bound, temporary (one hour), revoked.
func (f *KeyFixtures) Collection() *domain.KeyCollection {
	return &domain.KeyCollection{Keys: []domain.KeyRecord{
		f.Permanent("AAAA0000000000000000000000000001"),
		f.Bound("AAAA0000000000000000000000000002", FixtureHWID),
		f.Temporary("AAAA0000000000000000000000000003", time.Hour),
		f.Revoked("AAAA0000000000000000000000000004"),
	}}
}

// WriteKeysFile writes c as a keys document in dir and returns its path
func WriteKeysFile(t *testing.T, dir string, c *domain.KeyCollection) string {
	t.Helper()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		t.Fatalf("marshal keys: %v", err)
	}
	path := filepath.Join(dir, "keys.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write keys file: %v", err)
	}
	return path
}
