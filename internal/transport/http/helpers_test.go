package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	apierrors "keyforge/internal/errors"
	"keyforge/internal/keys"
	"keyforge/internal/middleware"
	"keyforge/internal/services"
	"keyforge/internal/shared/testutil"
	"keyforge/internal/store"
	"keyforge/pkg/contracts/domain"
	"keyforge/pkg/contracts/events"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []events.KeyEvent
}

func (l *eventLog) Publish(_ context.Context, ev events.KeyEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) Types() []events.MessageType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.MessageType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

type testEnv struct {
	router http.Handler
	store  *store.MemoryStore
	clock  *clock
	events *eventLog
}

// newTestEnv wires the real manager and service over an in-memory store
// seeded with c (nil for an empty store).
func newTestEnv(t *testing.T, c *domain.KeyCollection) *testEnv {
	t.Helper()

	mem := store.NewMemoryStore()
	if c != nil {
		var err error
		mem, err = store.NewMemoryStoreFrom(c)
		require.NoError(t, err)
	}
	return newTestEnvWithStore(t, mem, mem)
}

func newTestEnvWithStore(t *testing.T, st keys.Store, mem *store.MemoryStore, opts ...keys.Option) *testEnv {
	t.Helper()

	logger, _ := testutil.NewTestLogger(t)
	clk := &clock{now: testutil.FixtureNow}
	log := &eventLog{}

	manager := keys.NewManager(st, append([]keys.Option{keys.WithClock(clk.Now), keys.WithLogger(logger)}, opts...)...)
	service := services.NewKeyService(manager, log, logger)
	eh := apierrors.NewErrorHandler(logger, false)

	kh := NewKeyHandler(service, eh, logger)
	xh := NewExportHandler(service, eh, logger)
	xh.now = clk.Now

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", kh.Validate)
		r.Get("/export", xh.Export)
		kh.Register(r)
	})

	return &testEnv{router: r, store: mem, clock: clk, events: log}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// brokenStore fails every operation with a storage error naming a path
type brokenStore struct{}

var errDisk = errors.New("open /var/lib/keyforge/keys.json: permission denied")

func (brokenStore) Load(context.Context) (*domain.KeyCollection, error) {
	return nil, keys.NewStorageError("load", errDisk)
}

func (brokenStore) Save(context.Context, *domain.KeyCollection) error {
	return keys.NewStorageError("save", errDisk)
}
