package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
)

// ErrReplyTimeout is returned when a remote peer does not answer a forwarded envelope in time.
var ErrReplyTimeout = errors.New("timed out waiting for reply")

// Transport moves byte frames to and from a remote peer.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	// OnMessage starts delivering inbound frames to receive. The returned function stops it.
	OnMessage(receive func([]byte)) (func(), error)
}

// Option configures a Serializing client.
type Option = opts.Option[Serializing]

var (
	// WithLogger sets the logger for transport failures.
	WithLogger = opts.ForName[Serializing, *slog.Logger]("logger")

	// WithReplyTimeout makes forwarded unicast envelopes wait up to the given
	// duration for the peer's result frame. Without it forwarding is fire-and-forget.
	WithReplyTimeout = opts.ForName[Serializing, time.Duration]("replyTimeout")
)

// Serializing is a client whose peer lives on the other side of a Transport.
//
// Envelopes routed to the client are encoded and sent to the peer. Envelopes
// sent by the peer are dispatched on its behalf, and the delivery result is
// sent back referencing the envelope id.
type Serializing struct {
	participant
	transport    Transport
	logger       *slog.Logger
	replyTimeout time.Duration

	pending   *haxmap.Map[string, chan events.DeliveryResult]
	inflight  sync.WaitGroup
	stop      func()
	destroyed atomic.Bool
}

var _ Client = (*Serializing)(nil)

// NewSerializing registers a client called id with router and starts listening on transport.
// Envelopes for the client are encoded and sent to the peer; frames from the
// peer are dispatched through router as if id had sent them.
//
// Parameters:
//   - router: The router the client registers with, usually a *courier.Broker.
//   - id: The client id. It must not be empty.
//   - transport: Carries encoded frames to and from the peer.
//   - options: A variadic list of Option values, e.g. WithReplyTimeout to wait
//     for the peer's result on unicast sends.
//
// Returns:
//   - *Serializing: The registered client.
//   - error: An error if id or transport is missing, registration fails, or the
//     transport refuses a listener.
func NewSerializing(router Router, id string, transport Transport, options ...Option) (*Serializing, error) {
	if id == "" {
		return nil, courier.ErrEmptyClientID
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	c := &Serializing{
		participant: participant{id: id, router: router},
		transport:   transport,
		pending:     haxmap.New[string, chan events.DeliveryResult](),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	c.logger = slogx.Named(c.logger, "client").With(slogx.ClientID(id))

	if err := router.RegisterClient(c); err != nil {
		return nil, fmt.Errorf("register client '%s': %w", id, err)
	}
	stop, err := transport.OnMessage(c.receive)
	if err != nil {
		router.UnregisterClient(id)
		return nil, fmt.Errorf("listen on transport: %w", err)
	}
	c.stop = stop
	return c, nil
}

// On subscribes the peer to eventType. Matching envelopes are forwarded over
// the transport, so handler must be nil.
func (c *Serializing) On(ctx context.Context, eventType string, handler events.Handler) (func(), error) {
	if c.destroyed.Load() {
		return nil, courier.ErrDestroyed
	}
	if handler != nil {
		return nil, ErrHandlerNotSupported
	}
	return c.subscribe(ctx, eventType, events.HandlerFunc(c.forward))
}

func (c *Serializing) forward(ctx context.Context, env events.Envelope) (any, error) {
	frame, err := env.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	var reply chan events.DeliveryResult
	if c.replyTimeout > 0 && !env.IsBroadcast() {
		reply = make(chan events.DeliveryResult, 1)
		c.pending.Set(env.ID, reply)
		defer c.pending.Del(env.ID)
	}

	if err := c.transport.Send(ctx, frame); err != nil {
		return nil, fmt.Errorf("send to transport: %w", err)
	}
	if reply == nil {
		return nil, nil
	}

	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()
	select {
	case result := <-reply:
		if !result.OK() {
			return nil, errors.New(result.Message)
		}
		return result.Data, nil
	case <-timer.C:
		return nil, ErrReplyTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Serializing) receive(frame []byte) {
	if c.destroyed.Load() {
		return
	}

	if events.IsResult(frame) {
		ref, result, err := events.UnmarshalResult(frame)
		if err != nil {
			c.logger.Warn("dropping malformed result frame", slogx.Error(err))
			return
		}
		if reply, ok := c.pending.Get(ref); ok {
			select {
			case reply <- result:
			default:
			}
		}
		return
	}

	var env events.Envelope
	if err := env.UnmarshalJSON(frame); err != nil {
		c.logger.Warn("dropping malformed envelope frame", slogx.Error(err))
		return
	}

	// the peer may block on replies arriving on this same transport
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.dispatchRemote(context.Background(), env)
	}()
}

func (c *Serializing) dispatchRemote(ctx context.Context, env events.Envelope) {
	// the peer speaks for this client only, whatever source it claims
	result := c.Dispatch(ctx, env.Type, env.Recipient, env.Data)

	frame, err := events.MarshalResult(env.ID, result)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode result", slogx.Error(err), slogx.EventType(env.Type))
		return
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		c.logger.WarnContext(ctx, "failed to send result", slogx.Error(err), slogx.EventType(env.Type))
	}
}

// Wait blocks until the envelopes received from the peer so far are dispatched, or ctx is done.
func (c *Serializing) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy unregisters the client, stops listening and closes the transport when it is an io.Closer.
func (c *Serializing) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return courier.ErrDestroyed
	}
	c.router.UnregisterClient(c.id)
	if c.stop != nil {
		c.stop()
	}
	if closer, ok := c.transport.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
	}
	return nil
}
