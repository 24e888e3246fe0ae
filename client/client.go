package client

import (
	"context"
	"errors"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
)

// ErrHandlerNotSupported is returned when a handler is given to a client that forwards instead.
var ErrHandlerNotSupported = errors.New("client forwards events and does not take handlers")

// Client is a participant of a broker.
type Client interface {
	ID() string
	// Dispatch sends to recipient, or broadcasts when recipient is events.Wildcard.
	Dispatch(ctx context.Context, eventType, recipient string, data any) events.DeliveryResult
	// On subscribes to eventType. The returned function unsubscribes.
	On(ctx context.Context, eventType string, handler events.Handler) (func(), error)
	Off(eventType string)
	Destroy() error
}

// Router is the part of the broker clients talk to.
type Router interface {
	Subscribe(ctx context.Context, clientID, eventType string, handler events.Handler) error
	Unsubscribe(clientID, eventType string) bool
	SendTo(ctx context.Context, eventType, sender, recipient string, data any) events.DeliveryResult
	Broadcast(ctx context.Context, eventType, sender string, data any) events.DeliveryResult
	RegisterClient(client courier.ClientRef) error
	UnregisterClient(clientID string)
}

// participant holds what every client does the same way.
type participant struct {
	id     string
	router Router
}

func (p *participant) ID() string {
	return p.id
}

func (p *participant) Dispatch(ctx context.Context, eventType, recipient string, data any) events.DeliveryResult {
	if recipient == events.Wildcard {
		return p.router.Broadcast(ctx, eventType, p.id, data)
	}
	return p.router.SendTo(ctx, eventType, p.id, recipient, data)
}

func (p *participant) Off(eventType string) {
	p.router.Unsubscribe(p.id, eventType)
}

func (p *participant) subscribe(ctx context.Context, eventType string, handler events.Handler) (func(), error) {
	if err := p.router.Subscribe(ctx, p.id, eventType, handler); err != nil {
		return nil, err
	}
	return func() { p.router.Unsubscribe(p.id, eventType) }, nil
}
