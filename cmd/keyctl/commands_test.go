package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyforge/internal/keys"
	"keyforge/internal/services"
	"keyforge/internal/shared/testutil"
	"keyforge/internal/store"
	"keyforge/pkg/contracts/domain"
)

func newTestCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	manager := keys.NewManager(store.NewMemoryStore(), keys.WithLogger(logger))

	out := &bytes.Buffer{}
	return &cli{
		service: services.NewKeyService(manager, nil, logger),
		out:     out,
		now:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, out
}

func runCmd(t *testing.T, c *cli, out *bytes.Buffer, args ...string) string {
	t.Helper()
	out.Reset()
	require.NoError(t, c.run(context.Background(), args))
	return out.String()
}

func TestCLI_GenerateAndList(t *testing.T) {
	c, out := newTestCLI(t)

	ids := strings.Fields(runCmd(t, c, out, "generate", "-n", "3"))
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.Len(t, id, keys.DefaultIDLength)
	}

	listed := runCmd(t, c, out, "list")
	for _, id := range ids {
		assert.Contains(t, listed, id)
	}
	assert.Contains(t, listed, "KEY")

	assert.Equal(t, "No keys found\n", runCmd(t, c, out, "list", "-filter", "temporary"))
}

func TestCLI_TempKeyAndCheckTime(t *testing.T) {
	c, out := newTestCLI(t)

	line := runCmd(t, c, out, "tempkey", "-minutes", "30")
	id := strings.Fields(line)[0]
	assert.Contains(t, line, "expires")

	report := runCmd(t, c, out, "checktime", id)
	assert.Contains(t, report, id)
	assert.Contains(t, report, "active")
	assert.Regexp(t, `(29|30)m`, report)
}

func TestCLI_Lifecycle(t *testing.T) {
	c, out := newTestCLI(t)
	ctx := context.Background()

	id := strings.TrimSpace(runCmd(t, c, out, "generate"))
	_, err := c.service.Bind(ctx, id, "machine-a")
	require.NoError(t, err)

	assert.Equal(t, "HWID reset for key "+id+" (resets: 1)\n", runCmd(t, c, out, "resethwid", id))
	assert.Equal(t, "Key "+id+" revoked\n", runCmd(t, c, out, "revoke", id))

	c.json = true
	var rec domain.KeyRecord
	require.NoError(t, json.Unmarshal([]byte(runCmd(t, c, out, "show", id)), &rec))
	assert.False(t, rec.Active)
	assert.Equal(t, 1, rec.HWIDResets)
	c.json = false

	assert.Equal(t, "Key "+id+" deleted\n", runCmd(t, c, out, "delete", id))

	err = c.run(ctx, []string{"delete", id})
	assert.ErrorIs(t, err, keys.ErrNotFound)
}

func TestCLI_StatsJSON(t *testing.T) {
	c, out := newTestCLI(t)
	runCmd(t, c, out, "generate", "-n", "2")
	runCmd(t, c, out, "tempkey", "-minutes", "5")

	c.json = true
	var st domain.KeyStats
	require.NoError(t, json.Unmarshal([]byte(runCmd(t, c, out, "stats")), &st))
	assert.Equal(t, 3, st.TotalKeys)
	assert.Equal(t, 2, st.Permanent)
	assert.Equal(t, 1, st.Temporary)
	assert.Equal(t, 3, st.Unbound)
}

func TestCLI_Cleanup(t *testing.T) {
	c, out := newTestCLI(t)
	runCmd(t, c, out, "generate")
	assert.Equal(t, "Removed 0 expired key(s)\n", runCmd(t, c, out, "cleanup"))
}

func TestCLI_Export(t *testing.T) {
	c, out := newTestCLI(t)
	id := strings.TrimSpace(runCmd(t, c, out, "generate"))

	csvOut := runCmd(t, c, out, "export", "-out", "-")
	assert.Contains(t, csvOut, "Key,Type,Active")
	assert.Contains(t, csvOut, id)

	path := filepath.Join(t.TempDir(), "keys.xlsx")
	msg := runCmd(t, c, out, "export", "-format", "xlsx", "-out", path)
	assert.Equal(t, "Exported 1 key(s) to "+path+"\n", msg)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCLI_UsageErrors(t *testing.T) {
	c, _ := newTestCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"delete without key", []string{"delete"}},
		{"revoke with two keys", []string{"revoke", "a", "b"}},
		{"tempkey without minutes", []string{"tempkey"}},
		{"bad flag", []string{"generate", "-x"}},
		{"bad export format", []string{"export", "-format", "pdf"}},
		{"cleanup with args", []string{"cleanup", "now"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.run(context.Background(), tt.args)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}

func TestCLI_ServiceErrorsPassThrough(t *testing.T) {
	c, _ := newTestCLI(t)

	err := c.run(context.Background(), []string{"generate", "-n", "11"})
	assert.ErrorIs(t, err, keys.ErrInvalidArgument)

	err = c.run(context.Background(), []string{"list", "-filter", "weird"})
	assert.ErrorIs(t, err, keys.ErrInvalidArgument)
}
