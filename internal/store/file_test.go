package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyforge/internal/keys"
	"keyforge/internal/shared/testutil"
	"keyforge/pkg/contracts/domain"
)

func testCollection() *domain.KeyCollection {
	hwid := "HW-1"
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.KeyCollection{Keys: []domain.KeyRecord{
		{ID: "AAAA", CreatedAt: created, Kind: domain.KeyKindPermanent, Active: true},
		{ID: "BBBB", CreatedAt: created, Kind: domain.KeyKindPermanent, HWID: &hwid, Active: true, HWIDResets: 2},
	}}
}

func fastSealer(t *testing.T, passphrase string) *Sealer {
	t.Helper()
	s, err := NewSealer(passphrase, SealerConfig{N: 1024, R: 8, P: 1, KeyLen: 32})
	require.NoError(t, err)
	return s
}

func TestFileStore_LoadMissingFileIsEmpty(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data", "keys.json"))
	require.NoError(t, err)

	c, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c.Keys)
	assert.Empty(t, c.Keys)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	want := testCollection()
	require.NoError(t, s.Save(context.Background(), want))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"hwid_resets": 2`)
	assert.Contains(t, string(raw), `"hwid": null`)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "keys.json"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(context.Background(), testCollection()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keys.json", entries[0].Name())
}

func TestFileStore_LegacyDocumentDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	legacy := `{"keys":[{"key":"ABCDEF123456","created":"2024-05-01T12:30:45.123456","hwid":null}]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	c, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Keys, 1)

	rec := c.Keys[0]
	assert.Equal(t, domain.KeyKindPermanent, rec.Kind)
	assert.True(t, rec.Active)
	assert.Zero(t, rec.HWIDResets)
	assert.Equal(t, 2024, rec.CreatedAt.Year())
}

func TestFileStore_LegacyKeysDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(testutil.LegacyKeysDocument), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	c, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Keys, 3)

	assert.Equal(t, "HWID-LEGACY", c.Keys[1].BoundTo())
	assert.Equal(t, 2, c.Keys[1].HWIDResets)

	temp := c.Keys[2]
	assert.Equal(t, domain.KeyKindTemporary, temp.Kind)
	assert.False(t, temp.Active)
	require.NotNil(t, temp.ExpiresAt)
	assert.Equal(t, time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC), *temp.ExpiresAt)

	// A round trip writes zone-qualified timestamps and keeps every record.
	require.NoError(t, s.Save(context.Background(), c))
	again, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestFileStore_FixtureCollection(t *testing.T) {
	want := testutil.NewKeyFixtures().Collection()
	path := testutil.WriteKeysFile(t, t.TempDir(), want)

	s, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore_CorruptDocumentIsStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"keys":[`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, keys.ErrStorage)
}

func TestFileStore_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	s, err := NewFileStore(path, WithSealer(fastSealer(t, "correct horse")))
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), testCollection()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "BBBB")

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCollection(), got)

	t.Run("no passphrase", func(t *testing.T) {
		plain, err := NewFileStore(path)
		require.NoError(t, err)
		_, err = plain.Load(context.Background())
		assert.ErrorIs(t, err, ErrSealed)
		assert.ErrorIs(t, err, keys.ErrStorage)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		other, err := NewFileStore(path, WithSealer(fastSealer(t, "battery staple")))
		require.NoError(t, err)
		_, err = other.Load(context.Background())
		assert.ErrorIs(t, err, ErrSealed)
	})
}

func TestFileStore_PlainDocumentMigratesToSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	plain, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, plain.Save(context.Background(), testCollection()))

	sealed, err := NewFileStore(path, WithSealer(fastSealer(t, "pw")))
	require.NoError(t, err)
	c, err := sealed.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, sealed.Save(context.Background(), c))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, isSealed(raw))
}

func TestFileStore_HWIDMatchingSealedFormatStaysReadable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keys.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	m := keys.NewManager(s)

	id, err := m.Mint(ctx)
	require.NoError(t, err)
	_, err = m.Bind(ctx, id, sealedFormat)
	require.NoError(t, err)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	m = keys.NewManager(reopened)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Bound)
	_, err = m.Mint(ctx)
	require.NoError(t, err)

	rec, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sealedFormat, rec.BoundTo())
}

func TestIsSealed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"envelope", `{"format":"` + sealedFormat + `","version":1,"salt":"","nonce":"","ciphertext":""}`, true},
		{"plain document", `{"keys":[]}`, false},
		{"format inside a record", `{"keys":[{"key":"A","hwid":"` + sealedFormat + `"}]}`, false},
		{"format beside keys", `{"format":"` + sealedFormat + `","keys":[]}`, false},
		{"other format", `{"format":"something-else"}`, false},
		{"format not a string", `{"format":7}`, false},
		{"array", `["` + sealedFormat + `"]`, false},
		{"garbage", `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSealed([]byte(tt.doc)))
		})
	}
}

func TestFileStore_UnknownKeyTypeIsStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"keys":[{"key":"A","type":"lifetime"}]}`), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, keys.ErrStorage)
}
