package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"keyforge/internal/infrastructure"
	"keyforge/pkg/contracts"
	contract "keyforge/pkg/contracts/events"
)

const (
	defaultPingPeriod = 30 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 64
	broadcastBuffer   = 256
)

// Options tunes subscriber liveness and buffering
type Options struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
		if o.PingPeriod <= 0 {
			o.PingPeriod = defaultPingPeriod
		}
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

type outbound struct {
	payload   []byte
	eventType string
}

// Hub maintains the set of subscribers and broadcasts key events to them
type Hub struct {
	clients map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	logger  *slog.Logger
	metrics *Metrics
	opts    Options

	started  atomic.Bool
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub. metrics may be nil.
func NewHub(opts Options, metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "events.hub")),
		metrics:    metrics,
		opts:       opts.withDefaults(),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in a new goroutine. Calling it twice is a no-op.
func (h *Hub) Start() {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go h.run()
}

// Stop disconnects every subscriber and waits for the loop to exit or ctx to end
func (h *Hub) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.quit) })
	if !h.started.Load() {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues ev for every subscriber without blocking
func (h *Hub) Publish(ctx context.Context, ev contract.KeyEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case <-h.quit:
		return
	default:
	}

	select {
	case h.broadcast <- outbound{payload: payload, eventType: string(ev.Type)}:
	default:
		h.metrics.dropped(ctx, "hub")
		h.logger.WarnContext(ctx, "event broadcast queue full, dropping event",
			slog.String("type", string(ev.Type)))
	}
}

// Serve attaches an upgraded connection to the hub and starts its pumps
func (h *Hub) Serve(conn *websocket.Conn, traceID string) {
	c := newClient(h, conn, traceID)
	select {
	case h.register <- c:
	case <-h.quit:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c, "shutdown")
			}
			h.mu.Unlock()
			h.logger.Info("event hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			ctx := c.context()
			h.metrics.connected(ctx)
			h.logger.InfoContext(ctx, "subscriber connected",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("total_clients", count))
			h.greet(ctx, c)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c, "closed")
				h.logger.InfoContext(c.context(), "subscriber disconnected",
					slog.String("client_id", c.id),
					slog.Int("total_clients", len(h.clients)),
					slog.Duration("connection_duration", time.Since(c.connectedAt)))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- msg.payload:
			delivered++
		default:
			h.metrics.dropped(c.context(), "client")
			h.logger.WarnContext(c.context(), "subscriber send buffer full, disconnecting",
				slog.String("client_id", c.id))
			h.drop(c, "slow")
		}
	}
	h.metrics.sent(context.Background(), msg.eventType, delivered)
	h.logger.Debug("event broadcast",
		slog.String("type", msg.eventType),
		slog.Int("delivered", delivered),
		slog.Int("payload_size", len(msg.payload)))
}

// drop removes c; callers hold h.mu
func (h *Hub) drop(c *Client, reason string) {
	delete(h.clients, c)
	close(c.send)
	h.metrics.disconnected(c.context(), time.Since(c.connectedAt), reason)
}

func (h *Hub) greet(ctx context.Context, c *Client) {
	msg := contract.ConnectMessage{
		BaseMessage: contract.BaseMessage{
			ID:        uuid.NewString(),
			Type:      contract.MessageTypeConnect,
			Timestamp: time.Now().UTC(),
			TraceID:   c.traceID,
		},
		ClientID: c.id,
		Version:  contracts.Version,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.WarnContext(ctx, "failed to greet subscriber, buffer full",
			slog.String("client_id", c.id))
	}
}
