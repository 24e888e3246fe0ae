package client

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
)

// InMemory is a client whose handlers run in the broker's process.
type InMemory struct {
	participant
	destroyed atomic.Bool
}

var _ Client = (*InMemory)(nil)

// NewInMemory registers a new client called id with router.
func NewInMemory(router Router, id string) (*InMemory, error) {
	if id == "" {
		return nil, courier.ErrEmptyClientID
	}
	c := &InMemory{participant: participant{id: id, router: router}}
	if err := router.RegisterClient(c); err != nil {
		return nil, fmt.Errorf("register client '%s': %w", id, err)
	}
	return c, nil
}

// On subscribes handler to eventType.
func (c *InMemory) On(ctx context.Context, eventType string, handler events.Handler) (func(), error) {
	if c.destroyed.Load() {
		return nil, courier.ErrDestroyed
	}
	return c.subscribe(ctx, eventType, handler)
}

// OnFunc is On for plain functions.
func (c *InMemory) OnFunc(ctx context.Context, eventType string, fn events.HandlerFunc) (func(), error) {
	if fn == nil {
		return nil, courier.ErrNilHandler
	}
	return c.On(ctx, eventType, fn)
}

// Destroy unregisters the client together with all of its subscriptions.
func (c *InMemory) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return courier.ErrDestroyed
	}
	c.router.UnregisterClient(c.id)
	return nil
}
