package courier

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/tabsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTab(t *testing.T, hub *tabsync.LocalHub, options ...Option) *Broker {
	t.Helper()
	return newBroker(t, append(options, WithTabChannel(hub.Open(tabsync.ChannelName)))...)
}

func TestTabRelay(t *testing.T) {
	ctx := context.Background()

	t.Run("unicast is redelivered in the other session", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first, second := newTab(t, hub), newTab(t, hub)
		require.NotEqual(t, first.SessionID(), second.SessionID())

		local, remote := newRecorder(), newRecorder()
		require.NoError(t, first.Subscribe(ctx, "A", "user.created.v1", local.handler(nil, nil)))
		require.NoError(t, second.Subscribe(ctx, "A", "user.created.v1", remote.handler(nil, nil)))

		res := first.SendTo(ctx, "user.created.v1", "B", "A", map[string]any{"userId": "1"})
		require.True(t, res.OK())
		sent := local.wait(t)

		relayed := remote.wait(t)
		assert.Equal(t, sent.ID, relayed.ID)
		assert.Equal(t, first.SessionID(), relayed.SessionID)
		assert.Equal(t, "B", relayed.Source)
		assert.Equal(t, map[string]any{"userId": "1"}, relayed.Data)

		// the second session must not relay the envelope back
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, local.count())
		assert.Equal(t, 1, remote.count())
	})

	t.Run("broadcast is redelivered in the other session", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first, second := newTab(t, hub), newTab(t, hub)

		var calls atomic.Int32
		remote := newRecorder()
		require.NoError(t, first.SubscribeFunc(ctx, "Y", "order.placed.v1", func(context.Context, events.Envelope) (any, error) {
			calls.Add(1)
			return nil, nil
		}))
		require.NoError(t, second.Subscribe(ctx, "Z", "order.placed.v1", remote.handler(nil, nil)))
		require.NoError(t, second.SubscribeFunc(ctx, "X", "order.placed.v1", func(context.Context, events.Envelope) (any, error) {
			calls.Add(100)
			return nil, nil
		}))

		require.True(t, first.Broadcast(ctx, "order.placed.v1", "X", nil).OK())

		assert.Equal(t, events.Wildcard, remote.wait(t).Recipient)
		time.Sleep(50 * time.Millisecond)
		waitIdle(t, first)
		waitIdle(t, second)
		assert.Equal(t, int32(1), calls.Load(), "the sender is excluded in every session")
		assert.Equal(t, 1, remote.count())
	})

	t.Run("same session ignores its own frames", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first := newTab(t, hub, WithSessionID("session-shared"))
		second := newTab(t, hub, WithSessionID("session-shared"))

		local, remote := newRecorder(), newRecorder()
		require.NoError(t, first.Subscribe(ctx, "A", "t.v1", local.handler(nil, nil)))
		require.NoError(t, second.Subscribe(ctx, "A", "t.v1", remote.handler(nil, nil)))

		require.True(t, first.SendTo(ctx, "t.v1", "B", "A", nil).OK())
		local.wait(t)
		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, remote.count())
	})

	t.Run("nothing is relayed without a subscriber or after a veto", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first, second := newTab(t, hub), newTab(t, hub)

		remote := newRecorder()
		require.NoError(t, second.Subscribe(ctx, "A", "t.v1", remote.handler(nil, nil)))
		require.NoError(t, second.Subscribe(ctx, "Y", "t.v1", remote.handler(nil, nil)))

		assert.False(t, first.SendTo(ctx, "t.v1", "B", "A", nil).OK())
		assert.False(t, first.Broadcast(ctx, "t.v1", "B", nil).OK())

		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, remote.count())
	})

	t.Run("relayed envelopes pass the receiving hooks", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first, second := newTab(t, hub), newTab(t, hub)

		local, remote := newRecorder(), newRecorder()
		require.NoError(t, first.Subscribe(ctx, "A", "t.v1", local.handler(nil, nil)))
		require.NoError(t, second.Subscribe(ctx, "A", "t.v1", remote.handler(nil, nil)))

		observed := make(chan events.DeliveryResult, 1)
		second.UseAfterSendHook(func(_ context.Context, _ events.Envelope, r events.DeliveryResult) {
			observed <- r
		})

		require.True(t, first.SendTo(ctx, "t.v1", "B", "A", nil).OK())
		select {
		case r := <-observed:
			assert.True(t, r.OK())
			assert.Equal(t, "A", r.ClientID)
		case <-time.After(2 * time.Second):
			t.Fatal("relayed send did not reach the after-send hooks")
		}
		remote.wait(t)
	})

	t.Run("destroyed session stops relaying", func(t *testing.T) {
		hub := tabsync.NewLocalHub()
		first := newTab(t, hub)
		second, err := New(WithTabChannel(hub.Open(tabsync.ChannelName)))
		require.NoError(t, err)
		require.Equal(t, 2, hub.Len())

		remote := newRecorder()
		require.NoError(t, second.Subscribe(ctx, "A", "t.v1", remote.handler(nil, nil)))
		require.NoError(t, first.SubscribeFunc(ctx, "A", "t.v1", func(context.Context, events.Envelope) (any, error) { return nil, nil }))

		require.NoError(t, second.Destroy())
		assert.Equal(t, 1, hub.Len())

		require.True(t, first.SendTo(ctx, "t.v1", "B", "A", nil).OK())
		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, remote.count())
	})
}
