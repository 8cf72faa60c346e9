package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyforge/internal/config"
	"keyforge/internal/shared/testutil"
	api "keyforge/pkg/contracts/api/v1"
	"keyforge/pkg/contracts/domain"
	contract "keyforge/pkg/contracts/events"
)

const adminKey = "test-admin-key"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Store.Backend = "memory"
	cfg.Security.AdminAPIKeys = []string{adminKey}
	cfg.Scheduler = config.SchedulerConfig{}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *httptest.Server) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	a, err := NewApplication(context.Background(), cfg, logger)
	require.NoError(t, err)
	a.EventHub.Start()

	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Stop(context.Background())
	})
	return a, srv
}

func request(t *testing.T, method, url, body string, admin bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-API-Key", adminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApplication_PublicRoutes(t *testing.T) {
	_, srv := newTestApp(t, testConfig())

	tests := []struct {
		path   string
		status int
	}{
		{"/api/health", http.StatusOK},
		{"/api/health/ready", http.StatusOK},
		{"/api/health/live", http.StatusOK},
		{"/api/version", http.StatusOK},
		{"/api/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := request(t, http.MethodGet, srv.URL+tt.path, "", false)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestApplication_AdminRoutesRequireKey(t *testing.T) {
	_, srv := newTestApp(t, testConfig())

	resp := request(t, http.MethodPost, srv.URL+"/api/generate", `{"amount":1}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, srv.URL+"/api/stats", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, srv.URL+"/api/stats", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestApplication_GenerateThenValidate(t *testing.T) {
	_, srv := newTestApp(t, testConfig())

	resp := request(t, http.MethodPost, srv.URL+"/api/generate", `{"amount":2}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gen api.GenerateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gen))
	require.Len(t, gen.Keys, 2)
	assert.Len(t, gen.Keys[0], 32)

	body := `{"key":"` + gen.Keys[0] + `","hwid":"machine-a"}`
	resp = request(t, http.MethodPost, srv.URL+"/api/validate", body, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res domain.ValidationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.Valid)
	assert.True(t, res.NewlyBound)

	body = `{"key":"` + gen.Keys[0] + `","hwid":"machine-b"}`
	resp = request(t, http.MethodPost, srv.URL+"/api/validate", body, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = domain.ValidationResult{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonAlreadyBound, res.Reason)
}

func TestApplication_EventStream(t *testing.T) {
	_, srv := newTestApp(t, testConfig())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?api_key="+adminKey, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var hello contract.ConnectMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, contract.MessageTypeConnect, hello.Type)

	gen := request(t, http.MethodPost, srv.URL+"/api/generate", `{"amount":1}`, true)
	require.Equal(t, http.StatusOK, gen.StatusCode)

	var ev contract.KeyEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, contract.MessageTypeKeyGenerated, ev.Type)
	assert.Len(t, ev.Keys, 1)
}

func TestApplication_Metrics(t *testing.T) {
	_, srv := newTestApp(t, testConfig())

	request(t, http.MethodPost, srv.URL+"/api/generate", `{"amount":1}`, true)

	resp := request(t, http.MethodGet, srv.URL+"/metrics", "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_requests_total")
	assert.Contains(t, string(data), "system_goroutines")
}

func TestApplication_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Telemetry.Enabled = false
	_, srv := newTestApp(t, cfg)

	resp := request(t, http.MethodGet, srv.URL+"/metrics", "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplication_StartStop(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	a, err := NewApplication(context.Background(), testConfig(), logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.Eventually(t, func() bool {
		return handler.ContainsMessage("Application started successfully")
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
	assert.True(t, handler.ContainsMessage("Application shutdown complete"))
}

func TestApplication_StartFailsOnCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cfg := testConfig()
	cfg.Store.Backend = "file"
	cfg.Store.Path = path

	logger, _ := testutil.NewTestLogger(t)
	a, err := NewApplication(context.Background(), cfg, logger)
	require.NoError(t, err)

	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key store unreadable")
}

func TestNewApplication_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "sqlite"

	logger, _ := testutil.NewTestLogger(t)
	_, err := NewApplication(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}
