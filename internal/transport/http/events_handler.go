package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"keyforge/internal/config"
	apierrors "keyforge/internal/errors"
	"keyforge/internal/events"
	"keyforge/internal/middleware"
)

// EventsHandler upgrades GET /api/events to a websocket event stream
type EventsHandler struct {
	hub      *events.Hub
	origins  []string
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventsHandler creates the event stream handler. origins lists the
// browser origins allowed to subscribe; "*" allows any, and an empty list
// allows same-host pages only.
func NewEventsHandler(hub *events.Hub, cfg config.WebSocketConfig, origins []string, logger *slog.Logger) *EventsHandler {
	h := &EventsHandler{
		hub:     hub,
		origins: origins,
		logger:  logger.With(slog.String("handler", "events")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.WarnContext(r.Context(), "websocket upgrade rejected",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
			apierrors.WriteError(w, apierrors.New(status, apierrors.ErrWebSocketUpgrade.ErrorCode, reason.Error()))
		},
	}
	return h
}

// ServeHTTP handles GET /api/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the response
		return
	}
	h.logger.InfoContext(r.Context(), "event stream opened",
		slog.String("remote_addr", r.RemoteAddr))
	h.hub.Serve(conn, middleware.GetRequestID(r.Context()))
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	if len(h.origins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	return false
}
