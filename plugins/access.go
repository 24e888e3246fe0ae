package plugins

import (
	"context"
	"fmt"
	"path"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/hooks"
)

// Rule allows sends matching all of its patterns. Patterns use path.Match
// syntax, and an empty pattern matches anything. Broadcasts have the
// recipient events.Wildcard.
type Rule struct {
	Sender    string
	Recipient string
	EventType string
}

func (r Rule) matches(env events.Envelope) bool {
	return match(r.Sender, env.Source) && match(r.Recipient, env.Recipient) && match(r.EventType, env.Type)
}

func match(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

// AccessControl denies every send that no rule allows.
func AccessControl(rules ...Rule) courier.Plugin {
	for _, rule := range rules {
		for _, pattern := range []string{rule.Sender, rule.Recipient, rule.EventType} {
			if _, err := path.Match(pattern, ""); err != nil {
				return func(*courier.Broker) (func(), error) {
					return nil, fmt.Errorf("access rule pattern %q: %w", pattern, err)
				}
			}
		}
	}

	return func(b *courier.Broker) (func(), error) {
		return b.UseBeforeSendHook(func(_ context.Context, env events.Envelope) hooks.Decision {
			for _, rule := range rules {
				if rule.matches(env) {
					return hooks.Allow()
				}
			}
			return hooks.Deny(fmt.Sprintf("'%s' may not send '%s' to '%s'", env.Source, env.Type, env.Recipient))
		}), nil
	}
}
