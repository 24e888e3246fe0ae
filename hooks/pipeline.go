package hooks

import (
	"context"
	"log/slog"

	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/slogx"
)

// Decision is the verdict of a before-send hook.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow lets the send proceed.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny blocks the send and explains why.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// BeforeSendHook can veto an envelope before it reaches any subscriber.
type BeforeSendHook func(ctx context.Context, env events.Envelope) Decision

// AfterSendHook observes every send and its result, whatever the outcome.
type AfterSendHook func(ctx context.Context, env events.Envelope, result events.DeliveryResult)

// OnSubscribeHook observes new subscriptions.
type OnSubscribeHook func(ctx context.Context, eventType, clientID string)

// Pipeline holds the hooks for the three lifecycle points of the router.
// Hook panics never escape the pipeline.
type Pipeline struct {
	beforeSend  List[BeforeSendHook]
	afterSend   List[AfterSendHook]
	onSubscribe List[OnSubscribeHook]
	logger      *slog.Logger
}

// NewPipeline creates an empty pipeline that reports hook failures to logger.
func NewPipeline(logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: slogx.Named(logger, "hooks")}
}

// UseBeforeSend registers before-send hooks; the cleanup removes exactly these.
func (p *Pipeline) UseBeforeSend(hooks ...BeforeSendHook) func() {
	return register(&p.beforeSend, hooks)
}

// UseAfterSend registers after-send hooks; the cleanup removes exactly these.
func (p *Pipeline) UseAfterSend(hooks ...AfterSendHook) func() {
	return register(&p.afterSend, hooks)
}

// UseOnSubscribe registers on-subscribe hooks; the cleanup removes exactly these.
func (p *Pipeline) UseOnSubscribe(hooks ...OnSubscribeHook) func() {
	return register(&p.onSubscribe, hooks)
}

// BeforeSend runs the before-send hooks in registration order and stops at the first denial.
// A hook that panics denies the send.
func (p *Pipeline) BeforeSend(ctx context.Context, env events.Envelope) Decision {
	for _, hook := range p.beforeSend.Snapshot() {
		if d := p.runBeforeSend(ctx, hook, env); !d.Allowed {
			return d
		}
	}
	return Allow()
}

func (p *Pipeline) runBeforeSend(ctx context.Context, hook BeforeSendHook, env events.Envelope) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "before-send hook panicked", slogx.Panic(r), slogx.EventType(env.Type))
			d = Deny("hook panicked")
		}
	}()
	return hook(ctx, events.Freeze(env))
}

// AfterSend runs every after-send hook; failures are logged and skipped.
func (p *Pipeline) AfterSend(ctx context.Context, env events.Envelope, result events.DeliveryResult) {
	for _, hook := range p.afterSend.Snapshot() {
		p.guard(ctx, "after-send", env.Type, func() { hook(ctx, events.Freeze(env), result) })
	}
}

// OnSubscribe notifies the on-subscribe hooks.
func (p *Pipeline) OnSubscribe(ctx context.Context, eventType, clientID string) {
	for _, hook := range p.onSubscribe.Snapshot() {
		p.guard(ctx, "on-subscribe", eventType, func() { hook(ctx, eventType, clientID) })
	}
}

func (p *Pipeline) guard(ctx context.Context, stage, eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, stage+" hook panicked", slogx.Panic(r), slogx.EventType(eventType))
		}
	}()
	fn()
}

// Counts returns the number of registered before-send, after-send and on-subscribe hooks.
func (p *Pipeline) Counts() (beforeSend, afterSend, onSubscribe int) {
	return p.beforeSend.Len(), p.afterSend.Len(), p.onSubscribe.Len()
}
