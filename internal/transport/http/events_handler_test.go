package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyforge/internal/config"
	"keyforge/internal/events"
	"keyforge/internal/shared/testutil"
	contract "keyforge/pkg/contracts/events"
)

func newEventsServer(t *testing.T, origins []string) (*events.Hub, string) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	hub := events.NewHub(events.Options{}, nil, logger)
	hub.Start()
	h := NewEventsHandler(hub, config.Default().WebSocket, origins, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		_ = hub.Stop(context.Background())
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEventsHandler_Streams(t *testing.T) {
	hub, url := newEventsServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello contract.ConnectMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, contract.MessageTypeConnect, hello.Type)

	hub.Publish(context.Background(), contract.KeyEvent{
		BaseMessage: contract.BaseMessage{Type: contract.MessageTypeKeyDeleted},
		Keys:        []string{unboundID},
	})

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev contract.KeyEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, []string{unboundID}, ev.Keys)
}

func TestEventsHandler_Origins(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		ok      bool
	}{
		{"listed origin", []string{"https://admin.example.com"}, "https://admin.example.com", true},
		{"unlisted origin", []string{"https://admin.example.com"}, "https://evil.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.com", true},
		{"same host without list", nil, "", true},
		{"foreign host without list", nil, "https://evil.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, url := newEventsServer(t, tt.origins)

			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
