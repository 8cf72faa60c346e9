// Package notify posts key events to a Discord-compatible webhook. Delivery
// runs on a background worker; failures are logged and never reach the
// request that produced the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"keyforge/internal/config"
	"keyforge/pkg/contracts/events"
)

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("notifier closed")

// Notifier queues key events and posts them as webhook embeds
type Notifier struct {
	url      string
	username string
	client   *resty.Client
	logger   *slog.Logger

	queue chan events.KeyEvent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New creates a notifier for cfg and starts its worker. With no URL the
// notifier logs and drops every event.
func New(cfg config.WebhookConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}

	n := &Notifier{
		url:      cfg.URL,
		username: cfg.Username,
		logger:   logger.With(slog.String("component", "notifier")),
		queue:    make(chan events.KeyEvent, size),
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "keyforge-notifier/1.0").
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
			}),
	}

	if n.Enabled() {
		n.wg.Add(1)
		go n.run()
	}
	return n
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Publish queues ev for delivery without blocking. A full queue drops the event.
func (n *Notifier) Publish(ctx context.Context, ev events.KeyEvent) {
	if n == nil {
		return
	}
	if !n.Enabled() {
		n.logger.DebugContext(ctx, "webhook URL not configured, skipping event",
			slog.String("type", string(ev.Type)))
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.WarnContext(ctx, "webhook queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.Int("queue_size", cap(n.queue)))
	}
}

// Send posts ev synchronously. Used by the CLI, which exits right after.
func (n *Notifier) Send(ctx context.Context, ev events.KeyEvent) error {
	if !n.Enabled() {
		return nil
	}
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return n.post(ctx, ev)
}

// Close stops accepting events and waits for the queue to drain or ctx to end
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for ev := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.GetClient().Timeout*3)
		if err := n.post(ctx, ev); err != nil {
			n.logger.Warn("failed to deliver webhook",
				slog.String("type", string(ev.Type)),
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()))
		} else {
			n.logger.Debug("webhook delivered",
				slog.String("type", string(ev.Type)),
				slog.String("event_id", ev.ID))
		}
		cancel()
	}
}

func (n *Notifier) post(ctx context.Context, ev events.KeyEvent) error {
	msg := Message{Username: n.username, Embeds: []Embed{BuildEmbed(ev)}}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(n.url)
	if err != nil {
		// url.Error carries the webhook URL, whose path holds the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook rejected event (%d)", resp.StatusCode())
	}
	return nil
}
