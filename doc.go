/*
Package courier is an in-process event router. Independently deployed modules,
called clients, exchange typed CloudEvents-shaped messages through a Broker
without knowing about each other.

# Delivery

  - Unicast: SendTo delivers to exactly one client and waits for its handler.
    A value returned by the handler travels back in DeliveryResult.Data
    (request-reply).
  - Broadcast: Broadcast delivers to every subscriber except the sender. Handlers
    run detached; the result only tells how many were started.

Every send returns a DeliveryResult with status ACK or NACK. Neither SendTo nor
Broadcast returns an error or panics: blocked sends, unroutable sends and
failing handlers are all NACKs.

# Hooks

  - before-send hooks may veto an envelope (hooks.Deny)
  - after-send hooks observe every send with its result
  - on-subscribe hooks observe new subscriptions

Each registration returns a cleanup that removes exactly what it added.
RegisterHooks installs plugin bundles (see the plugins package).

# Tab relay

With WithTabChannel, every delivered envelope is also posted on a shared
channel so that brokers of other tabs or processes of the same logical session
deliver it to their own subscribers. Envelopes are tagged with the broker's
session id to suppress echoes, and relayed envelopes are never relayed again.

# Basic Usage

	var UserCreated = events.Define[User]("user.created.v1")

	b, err := courier.New(courier.WithLogger(logger))
	if err != nil {
		return err
	}
	defer b.Destroy()

	_ = courier.On(ctx, b, "profile", UserCreated, func(ctx context.Context, ev events.Event[User]) (any, error) {
		return "welcome " + ev.Payload.Name, nil
	})

	res := courier.Send(ctx, b, UserCreated, "signup", "profile", User{Name: "alice"})
	if res.OK() {
		greeting, _ := courier.Reply[string](res)
		fmt.Println(greeting)
	}
*/
package courier
