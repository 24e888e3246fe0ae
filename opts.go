package courier

import (
	"log/slog"

	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/tabsync"
	"github.com/fogfish/opts"
)

type config struct {
	sessionID  string
	tabChannel tabsync.Channel
	logger     *slog.Logger
	catalog    *events.Catalog
}

// Option configures a Broker.
type Option = opts.Option[config]

var (
	// WithSessionID fixes the session id instead of generating one.
	WithSessionID = opts.ForName[config, string]("sessionID")

	// WithLogger sets the logger. Defaults to slog.Default().
	WithLogger = opts.ForName[config, *slog.Logger]("logger")

	// WithCatalog restricts the broker to the event types of catalog.
	WithCatalog = opts.ForName[config, *events.Catalog]("catalog")
)

// WithTabChannel enables relaying envelopes to other sessions listening on channel.
// Without it the broker delivers locally only.
func WithTabChannel(channel tabsync.Channel) Option {
	return opts.Type[config](func(c *config) error {
		c.tabChannel = channel
		return nil
	})
}
