package courier

import (
	"context"

	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/jsonx"
)

// On subscribes clientID to a typed event.
func On[T any](ctx context.Context, b *Broker, clientID string, def events.Definition[T], fn func(context.Context, events.Event[T]) (any, error)) error {
	if fn == nil {
		return ErrNilHandler
	}
	return b.Subscribe(ctx, clientID, def.Name(), def.Handler(fn))
}

// Send delivers a typed event to recipient.
func Send[T any](ctx context.Context, b *Broker, def events.Definition[T], sender, recipient string, payload T) events.DeliveryResult {
	return b.SendTo(ctx, def.Name(), sender, recipient, payload)
}

// Publish broadcasts a typed event to every subscriber but sender.
func Publish[T any](ctx context.Context, b *Broker, def events.Definition[T], sender string, payload T) events.DeliveryResult {
	return b.Broadcast(ctx, def.Name(), sender, payload)
}

// Reply recovers a typed reply from a unicast result.
// Replies that crossed a transport arrive in their dynamic JSON form and are
// decoded into R.
func Reply[R any](result events.DeliveryResult) (R, bool) {
	var zero R
	if !result.OK() || result.Data == nil {
		return zero, false
	}
	v, err := jsonx.Convert[R](result.Data)
	if err != nil {
		return zero, false
	}
	return v, true
}
