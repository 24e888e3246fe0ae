package events

import (
	"context"
	"fmt"

	"github.com/casualjim/courier/pkg/jsonx"
)

// Event is an envelope whose payload has been recovered as a T.
type Event[T any] struct {
	Envelope
	Payload T
}

// Definition ties an event type name to the Go type of its payload.
type Definition[T any] struct {
	name string
}

// Define declares a typed event.
func Define[T any](name string) Definition[T] {
	return Definition[T]{name: name}
}

// Name returns the event type identifier.
func (d Definition[T]) Name() string {
	return d.name
}

// Prototype returns the zero value of the payload type.
func (d Definition[T]) Prototype() any {
	var zero T
	return zero
}

// Decode recovers the typed payload from an envelope of this definition.
func (d Definition[T]) Decode(env Envelope) (Event[T], error) {
	if env.Type != d.name {
		return Event[T]{}, fmt.Errorf("envelope type '%s' does not match '%s'", env.Type, d.name)
	}
	payload, err := jsonx.Convert[T](env.Data)
	if err != nil {
		return Event[T]{}, fmt.Errorf("%s: %w", d.name, err)
	}
	return Event[T]{Envelope: env, Payload: payload}, nil
}

// Handler wraps a typed function as a Handler. Payloads that do not decode
// into T are reported as handler errors.
func (d Definition[T]) Handler(fn func(context.Context, Event[T]) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, env Envelope) (any, error) {
		ev, err := d.Decode(env)
		if err != nil {
			return nil, err
		}
		return fn(ctx, ev)
	})
}
