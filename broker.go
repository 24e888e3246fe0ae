package courier

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/hooks"
	"github.com/casualjim/courier/internal/subscriptions"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/casualjim/courier/pkg/uuidx"
	"github.com/casualjim/courier/tabsync"
	"github.com/fogfish/opts"
)

// ClientRef is what the broker keeps about a registered client.
// The registry is for introspection only and never consulted during delivery.
type ClientRef interface {
	ID() string
}

// Broker routes envelopes between clients.
//
// A Broker is owned by the application that creates it; there is no package
// level instance. All methods are safe for concurrent use.
type Broker struct {
	sessionID string
	index     *subscriptions.Index
	pipeline  *hooks.Pipeline
	clients   *haxmap.Map[string, ClientRef]
	tabs      *tabsync.Synchronizer
	catalog   *events.Catalog
	logger    *slog.Logger

	inflight  sync.WaitGroup
	destroyed atomic.Bool
}

// New creates a broker for one session. Without options the broker gets a
// fresh session id, logs to slog.Default(), accepts any event type and only
// delivers to handlers registered on it.
//
// Parameters:
//   - options: A variadic list of Option values such as WithSessionID,
//     WithLogger, WithCatalog and WithTabChannel.
//
// Returns:
//   - *Broker: The broker, ready to accept subscriptions.
//   - error: An error if an option fails to apply or the tab channel can not be listened on.
func New(options ...Option) (*Broker, error) {
	var cfg config
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuidx.SessionID()
	}

	b := &Broker{
		sessionID: cfg.sessionID,
		index:     subscriptions.New(),
		pipeline:  hooks.NewPipeline(cfg.logger),
		clients:   haxmap.New[string, ClientRef](),
		catalog:   cfg.catalog,
		logger:    slogx.Named(cfg.logger, "courier").With(slogx.SessionID(cfg.sessionID)),
	}

	if cfg.tabChannel != nil {
		tabs, err := tabsync.New(cfg.tabChannel, cfg.sessionID, b.relay, tabsync.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("tab sync: %w", err)
		}
		b.tabs = tabs
	}
	return b, nil
}

// SessionID identifies this broker's session for tab relay.
func (b *Broker) SessionID() string {
	return b.sessionID
}

// Subscribe registers handler for eventType on behalf of clientID.
// Subscribing the same pair again replaces the previous handler.
func (b *Broker) Subscribe(ctx context.Context, clientID, eventType string, handler events.Handler) error {
	if b.destroyed.Load() {
		return ErrDestroyed
	}
	if clientID == "" {
		return ErrEmptyClientID
	}
	if eventType == "" {
		return ErrEmptyEventType
	}
	if isNilHandler(handler) {
		return ErrNilHandler
	}
	if b.catalog != nil && !b.catalog.Has(eventType) {
		return fmt.Errorf("%w: '%s'", ErrUnknownEventType, eventType)
	}

	b.index.Subscribe(clientID, eventType, handler)
	b.pipeline.OnSubscribe(ctx, eventType, clientID)
	return nil
}

// SubscribeFunc is Subscribe for plain functions.
func (b *Broker) SubscribeFunc(ctx context.Context, clientID, eventType string, fn events.HandlerFunc) error {
	if fn == nil {
		return ErrNilHandler
	}
	return b.Subscribe(ctx, clientID, eventType, fn)
}

func isNilHandler(h events.Handler) bool {
	if h == nil {
		return true
	}
	fn, ok := h.(events.HandlerFunc)
	return ok && fn == nil
}

// Unsubscribe removes the subscription of clientID to eventType and reports whether it existed.
func (b *Broker) Unsubscribe(clientID, eventType string) bool {
	return b.index.Unsubscribe(clientID, eventType)
}

// IsSubscribed reports whether clientID listens to eventType.
func (b *Broker) IsSubscribed(clientID, eventType string) bool {
	return b.index.IsSubscribed(clientID, eventType)
}

// RegisterClient adds a client to the registry.
func (b *Broker) RegisterClient(client ClientRef) error {
	if b.destroyed.Load() {
		return ErrDestroyed
	}
	if client == nil || client.ID() == "" {
		return ErrEmptyClientID
	}
	b.clients.Set(client.ID(), client)
	return nil
}

// UnregisterClient removes a client from the registry together with all of its subscriptions.
func (b *Broker) UnregisterClient(clientID string) {
	b.clients.Del(clientID)
	if n := b.index.UnregisterClient(clientID); n > 0 {
		b.logger.Debug("client unregistered", slogx.ClientID(clientID), slog.Int("subscriptions", n))
	}
}

// Clients returns the registered clients ordered by id.
func (b *Broker) Clients() []ClientRef {
	result := make([]ClientRef, 0, b.clients.Len())
	b.clients.ForEach(func(_ string, c ClientRef) bool {
		result = append(result, c)
		return true
	})
	slices.SortFunc(result, func(a, c ClientRef) int { return strings.Compare(a.ID(), c.ID()) })
	return result
}

// SubscribedClients returns the ids of clients holding at least one subscription.
func (b *Broker) SubscribedClients() []string {
	return b.index.Clients()
}

// Subscriptions returns a snapshot of event type -> subscribed client ids.
func (b *Broker) Subscriptions() map[string][]string {
	return b.index.Subscriptions()
}

// Dispatch sends to recipient, or broadcasts when recipient is events.Wildcard.
func (b *Broker) Dispatch(ctx context.Context, eventType, sender, recipient string, data any) events.DeliveryResult {
	if recipient == events.Wildcard {
		return b.Broadcast(ctx, eventType, sender, data)
	}
	return b.SendTo(ctx, eventType, sender, recipient, data)
}

// SendTo delivers an event to a single recipient and waits for its handler.
// The value returned by the handler is attached to the ACK as Data.
// SendTo never panics; every failure is reported as a NACK.
func (b *Broker) SendTo(ctx context.Context, eventType, sender, recipient string, data any) events.DeliveryResult {
	return b.sendTo(ctx, events.New(eventType, sender, recipient, b.sessionID, data), false)
}

// Broadcast delivers an event to every subscriber of eventType except sender.
// Handlers run detached: Broadcast returns as soon as they are started, and
// their failures are only logged.
func (b *Broker) Broadcast(ctx context.Context, eventType, sender string, data any) events.DeliveryResult {
	return b.broadcast(ctx, events.New(eventType, sender, events.Wildcard, b.sessionID, data), false)
}

func (b *Broker) sendTo(ctx context.Context, env events.Envelope, skipRelay bool) events.DeliveryResult {
	recipient := env.Recipient

	if b.catalog != nil && !b.catalog.Has(env.Type) {
		return b.finish(ctx, env, events.Nack(fmt.Sprintf("Unknown event type '%s'", env.Type)).WithClient(recipient))
	}

	if d := b.pipeline.BeforeSend(ctx, env); !d.Allowed {
		b.logger.DebugContext(ctx, "send blocked", slogx.EventType(env.Type), slogx.ClientID(recipient), slog.String("reason", d.Reason))
		return b.finish(ctx, env, events.Nack(blockedMessage("Event blocked by beforeSend hook", d.Reason)).WithClient(recipient))
	}

	handler, ok := b.index.Handler(recipient, env.Type)
	if !ok {
		if skipRelay {
			b.logger.DebugContext(ctx, "relayed envelope has no local recipient", slogx.EventType(env.Type), slogx.ClientID(recipient))
		}
		return b.finish(ctx, env, events.Nack(fmt.Sprintf("Client '%s' not subscribed to '%s'", recipient, env.Type)).WithClient(recipient))
	}

	var result events.DeliveryResult
	value, err := b.invoke(ctx, handler, events.Freeze(env))
	if err != nil {
		result = events.Nack(fmt.Sprintf("Event not handled by '%s': %v", recipient, err)).WithClient(recipient)
	} else {
		result = events.Ack(fmt.Sprintf("Event delivered and handled by '%s'", recipient)).WithClient(recipient).WithData(value)
	}

	b.pipeline.AfterSend(ctx, env, result)
	if !skipRelay {
		b.sync(ctx, env)
	}
	return result
}

func (b *Broker) broadcast(ctx context.Context, env events.Envelope, skipRelay bool) events.DeliveryResult {
	if b.catalog != nil && !b.catalog.Has(env.Type) {
		return b.finish(ctx, env, events.Nack(fmt.Sprintf("Unknown event type '%s'", env.Type)))
	}

	if d := b.pipeline.BeforeSend(ctx, env); !d.Allowed {
		b.logger.DebugContext(ctx, "broadcast blocked", slogx.EventType(env.Type), slog.String("reason", d.Reason))
		return b.finish(ctx, env, events.Nack(blockedMessage("Broadcast blocked by beforeSend hook", d.Reason)))
	}

	recipients := b.index.SubscribersExcept(env.Type, env.Source)
	if len(recipients) == 0 {
		return b.finish(ctx, env, events.Nack(fmt.Sprintf("No subscribers for event '%s'", env.Type)))
	}

	detached := context.WithoutCancel(ctx)
	started := 0
	for _, clientID := range recipients {
		handler, ok := b.index.Handler(clientID, env.Type)
		if !ok {
			// unsubscribed since the recipients were collected
			continue
		}
		b.inflight.Add(1)
		go b.deliverDetached(detached, clientID, handler, events.Freeze(env))
		started++
	}
	if started == 0 {
		return b.finish(ctx, env, events.Nack(fmt.Sprintf("No subscribers for event '%s'", env.Type)))
	}

	result := events.Ack(fmt.Sprintf("Event broadcast to %s", pluralize(started, "client")))
	b.pipeline.AfterSend(ctx, env, result)
	if !skipRelay {
		b.sync(ctx, env)
	}
	return result
}

func (b *Broker) deliverDetached(ctx context.Context, clientID string, handler events.Handler, env events.Envelope) {
	defer b.inflight.Done()
	if _, err := b.invoke(ctx, handler, env); err != nil {
		b.logger.ErrorContext(ctx, "broadcast handler failed",
			slogx.Error(err), slogx.EventType(env.Type), slogx.ClientID(clientID), slog.String("id", env.ID))
	}
}

// invoke runs a handler, turning panics into errors.
func (b *Broker) invoke(ctx context.Context, handler events.Handler, env events.Envelope) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, env)
}

// finish runs the after-send hooks for a send that ended before delivery.
func (b *Broker) finish(ctx context.Context, env events.Envelope, result events.DeliveryResult) events.DeliveryResult {
	b.pipeline.AfterSend(ctx, env, result)
	return result
}

func (b *Broker) sync(ctx context.Context, env events.Envelope) {
	if b.tabs != nil {
		b.tabs.Sync(ctx, env)
	}
}

// relay delivers an envelope that originated in another session, without relaying it again.
func (b *Broker) relay(ctx context.Context, env events.Envelope) {
	if b.destroyed.Load() {
		return
	}
	var result events.DeliveryResult
	if env.IsBroadcast() {
		result = b.broadcast(ctx, env, true)
	} else {
		result = b.sendTo(ctx, env, true)
	}
	b.logger.DebugContext(ctx, "relayed envelope delivered",
		slogx.EventType(env.Type), slog.String("status", string(result.Status)), slog.String("id", env.ID))
}

// Wait blocks until every detached broadcast handler started so far has returned, or ctx is done.
func (b *Broker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy stops tab relay and drops every subscription and registered client.
// A broker can be destroyed once; later calls return ErrDestroyed.
func (b *Broker) Destroy() error {
	if !b.destroyed.CompareAndSwap(false, true) {
		return ErrDestroyed
	}
	if b.tabs != nil {
		b.tabs.Destroy()
	}
	b.index.Clear()

	ids := make([]string, 0, b.clients.Len())
	b.clients.ForEach(func(id string, _ ClientRef) bool {
		ids = append(ids, id)
		return true
	})
	b.clients.Del(ids...)
	return nil
}

func blockedMessage(message, reason string) string {
	if reason == "" {
		return message
	}
	return message + ": " + reason
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
