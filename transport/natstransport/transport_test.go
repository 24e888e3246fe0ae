package natstransport

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/events"
	"github.com/casualjim/courier/pkg/uuidx"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(nats.DefaultURL, nats.Timeout(500*time.Millisecond))
	if err != nil {
		t.Skipf("nats server not available: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestSubjects(t *testing.T) {
	down, up := Subjects(DefaultPrefix, "A")
	assert.Equal(t, "courier.clients.A.down", down)
	assert.Equal(t, "courier.clients.A.up", up)
}

func TestNewTransport(t *testing.T) {
	_, err := ForClient(nil, "A")
	assert.Error(t, err)

	conn := &nats.Conn{}
	_, err = ForClient(conn, "")
	assert.Error(t, err)

	side, err := ForClient(conn, "A", WithPrefix("app"))
	require.NoError(t, err)
	assert.Equal(t, "app.A.down", side.publish)
	assert.Equal(t, "app.A.up", side.listen)

	peer, err := ForPeer(conn, "A", WithPrefix("app"))
	require.NoError(t, err)
	assert.Equal(t, side.publish, peer.listen)
	assert.Equal(t, side.listen, peer.publish)

	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())
	assert.ErrorIs(t, peer.Send(context.Background(), []byte("x")), ErrClosed)
	_, err = peer.OnMessage(func([]byte) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	nc := setupNATS(t)
	prefix := WithPrefix("courier.test." + uuidx.NewString())

	b, err := courier.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Destroy() })

	side, err := ForClient(nc, "R", prefix)
	require.NoError(t, err)
	remote, err := client.NewSerializing(b, "R", side, client.WithReplyTimeout(2*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Destroy() })
	_, err = remote.On(ctx, "ping.v1", nil)
	require.NoError(t, err)

	peer, err := ForPeer(nc, "R", prefix)
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	received := make(chan events.Envelope, 1)
	stop, err := peer.OnMessage(func(frame []byte) {
		var env events.Envelope
		if err := env.UnmarshalJSON(frame); err != nil {
			return
		}
		received <- env
		reply, err := events.MarshalResult(env.ID, events.Ack("pong").WithData("pong"))
		if err != nil {
			return
		}
		_ = peer.Send(context.Background(), reply)
	})
	require.NoError(t, err)
	defer stop()

	res := b.SendTo(ctx, "ping.v1", "A", "R", map[string]any{"n": 1})
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, "pong", res.Data)

	select {
	case env := <-received:
		assert.Equal(t, "ping.v1", env.Type)
		assert.Equal(t, "A", env.Source)
		assert.Equal(t, map[string]any{"n": float64(1)}, env.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive the envelope")
	}
}
