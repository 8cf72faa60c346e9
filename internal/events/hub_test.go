package events

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
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"keyforge/internal/shared/testutil"
	"keyforge/pkg/contracts"
	"keyforge/pkg/contracts/domain"
	contract "keyforge/pkg/contracts/events"
)

func newTestHub(t *testing.T, metrics *Metrics) (*Hub, *httptest.Server) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(Options{PongWait: 2 * time.Second}, metrics, logger)
	hub.Start()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, "trace-ws")
	}))
	t.Cleanup(func() {
		_ = hub.Stop(context.Background())
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHub_GreetsAndBroadcasts(t *testing.T) {
	hub, srv := newTestHub(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)

	for _, conn := range []*websocket.Conn{a, b} {
		var hello contract.ConnectMessage
		readJSON(t, conn, &hello)
		assert.Equal(t, contract.MessageTypeConnect, hello.Type)
		assert.Equal(t, contracts.Version, hello.Version)
		assert.Equal(t, "trace-ws", hello.TraceID)
		assert.NotEmpty(t, hello.ClientID)
	}
	assert.Equal(t, 2, hub.ClientCount())

	hub.Publish(context.Background(), contract.KeyEvent{
		BaseMessage: contract.BaseMessage{ID: "ev-1", Type: contract.MessageTypeKeyGenerated, Timestamp: testutil.FixtureNow},
		Keys:        []string{"K1", "K2"},
		Kind:        domain.KeyKindPermanent,
	})

	for _, conn := range []*websocket.Conn{a, b} {
		var ev contract.KeyEvent
		readJSON(t, conn, &ev)
		assert.Equal(t, contract.MessageTypeKeyGenerated, ev.Type)
		assert.Equal(t, []string{"K1", "K2"}, ev.Keys)
		assert.Equal(t, domain.KeyKindPermanent, ev.Kind)
	}
}

func TestHub_UnregistersClosedSubscribers(t *testing.T) {
	hub, srv := newTestHub(t, nil)
	conn := dial(t, srv)

	var hello contract.ConnectMessage
	readJSON(t, conn, &hello)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	hub, srv := newTestHub(t, nil)
	conn := dial(t, srv)

	var hello contract.ConnectMessage
	readJSON(t, conn, &hello)

	require.NoError(t, hub.Stop(context.Background()))
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.NotPanics(t, func() {
		hub.Publish(context.Background(), contract.KeyEvent{BaseMessage: contract.BaseMessage{Type: contract.MessageTypeKeyDeleted}})
	})
	assert.NoError(t, hub.Stop(context.Background()))
}

func TestHub_StopWithoutStart(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := NewHub(Options{}, nil, logger)
	assert.NoError(t, hub.Stop(context.Background()))
}

func TestHub_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := NewMetrics(provider.Meter(meterName))
	require.NoError(t, err)

	hub, srv := newTestHub(t, metrics)
	conn := dial(t, srv)
	var hello contract.ConnectMessage
	readJSON(t, conn, &hello)

	hub.Publish(context.Background(), contract.KeyEvent{BaseMessage: contract.BaseMessage{Type: contract.MessageTypeKeyRevoked}})
	var ev contract.KeyEvent
	readJSON(t, conn, &ev)

	collect := func() map[string]int64 {
		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		sums := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if s, ok := m.Data.(metricdata.Sum[int64]); ok {
					for _, dp := range s.DataPoints {
						sums[m.Name] += dp.Value
					}
				}
			}
		}
		return sums
	}

	assert.Eventually(t, func() bool {
		return collect()["events_messages_sent_total"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	sums := collect()
	assert.Equal(t, int64(1), sums["events_connections_total"])
	assert.Equal(t, int64(1), sums["events_connections_active"])
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, defaultPongWait, o.PongWait)
	assert.Less(t, o.PingPeriod, o.PongWait)
	assert.Equal(t, defaultSendBuffer, o.SendBuffer)

	o = Options{PingPeriod: time.Minute, PongWait: 10 * time.Second}.withDefaults()
	assert.Equal(t, 9*time.Second, o.PingPeriod)
}
