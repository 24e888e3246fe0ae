package events

import "context"

// Handler consumes envelopes delivered to a subscription.
// The returned value flows back to the sender of a unicast as DeliveryResult.Data;
// a non-nil error turns the delivery into a NACK.
type Handler interface {
	Handle(ctx context.Context, env Envelope) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env Envelope) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env Envelope) (any, error) {
	return f(ctx, env)
}
