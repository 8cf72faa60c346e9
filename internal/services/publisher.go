package services

import (
	"context"

	"keyforge/pkg/contracts/events"
)

// Publisher delivers key events. Implementations must not block the caller
// for network I/O.
type Publisher interface {
	Publish(ctx context.Context, ev events.KeyEvent)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, ev events.KeyEvent)

func (f PublisherFunc) Publish(ctx context.Context, ev events.KeyEvent) { f(ctx, ev) }

// MultiPublisher fans one event out to every publisher in order
type MultiPublisher []Publisher

func (mp MultiPublisher) Publish(ctx context.Context, ev events.KeyEvent) {
	for _, p := range mp {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, events.KeyEvent) {}
