package plugins

import (
	"context"
	"log/slog"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/slogx"
)

// Logging logs every subscription and every send outcome.
// Acknowledged sends are logged at debug level, refused ones as warnings.
func Logging(logger *slog.Logger) courier.Plugin {
	return func(b *courier.Broker) (func(), error) {
		logger := slogx.Named(logger, "courier.audit")

		removeAfter := b.UseAfterSendHook(func(ctx context.Context, env events.Envelope, result events.DeliveryResult) {
			level := slog.LevelDebug
			if !result.OK() {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, result.Message,
				slogx.EventType(env.Type),
				slog.String("source", env.Source),
				slog.String("recipient", env.Recipient),
				slog.String("status", string(result.Status)),
				slog.String("id", env.ID),
			)
		})
		removeSubscribe := b.UseOnSubscribeHandler(func(ctx context.Context, eventType, clientID string) {
			logger.InfoContext(ctx, "client subscribed", slogx.ClientID(clientID), slogx.EventType(eventType))
		})

		return func() {
			removeAfter()
			removeSubscribe()
		}, nil
	}
}
