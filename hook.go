package courier

import (
	"github.com/casualjim/courier/hooks"
)

// Plugin installs a bundle of hooks on a broker and returns its cleanup.
type Plugin = hooks.Plugin[*Broker]

// UseBeforeSendHook registers a hook that may veto envelopes before delivery.
// The returned function removes it.
func (b *Broker) UseBeforeSendHook(hook hooks.BeforeSendHook) func() {
	return b.pipeline.UseBeforeSend(hook)
}

// UseAfterSendHook registers a hook that observes every send and its result.
// The returned function removes it.
func (b *Broker) UseAfterSendHook(hook hooks.AfterSendHook) func() {
	return b.pipeline.UseAfterSend(hook)
}

// UseOnSubscribeHandler registers a hook notified of each new subscription.
// The returned function removes it.
func (b *Broker) UseOnSubscribeHandler(hook hooks.OnSubscribeHook) func() {
	return b.pipeline.UseOnSubscribe(hook)
}

// RegisterHooks installs plugins and returns one function tearing all of them down.
func (b *Broker) RegisterHooks(plugins ...Plugin) func() {
	return hooks.Install(b.logger, b, plugins...)
}
