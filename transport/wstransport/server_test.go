package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/courier"
	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, options ...ServerOption) (*courier.Broker, *httptest.Server) {
	t.Helper()
	b, err := courier.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Destroy() })

	options = append([]ServerOption{WithCheckOrigin(func(*http.Request) bool { return true })}, options...)
	srv, err := NewServer(b, options...)
	require.NoError(t, err)

	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)
	return b, server
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
}

func dial(t *testing.T, url string) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards to the peer and returns its reply", func(t *testing.T) {
		b, server := setup(t, WithReplyTimeout(2*time.Second))
		conn := dial(t, wsURL(server, "client=R&subscribe=ping.v1,%20other.v1"))

		received := make(chan events.Envelope, 1)
		_, err := conn.OnMessage(func(frame []byte) {
			var env events.Envelope
			if err := env.UnmarshalJSON(frame); err != nil {
				return
			}
			received <- env
			reply, err := events.MarshalResult(env.ID, events.Ack("ok").WithData("pong"))
			if err != nil {
				return
			}
			_ = conn.Send(context.Background(), reply)
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return b.IsSubscribed("R", "ping.v1") && b.IsSubscribed("R", "other.v1")
		}, 2*time.Second, 10*time.Millisecond)

		res := b.SendTo(ctx, "ping.v1", "A", "R", map[string]any{"n": "1"})
		require.True(t, res.OK(), res.Message)
		assert.Equal(t, "pong", res.Data)

		env := <-received
		assert.Equal(t, "ping.v1", env.Type)
		assert.Equal(t, "A", env.Source)
		assert.Equal(t, map[string]any{"n": "1"}, env.Data)
	})

	t.Run("dispatches on behalf of the peer", func(t *testing.T) {
		b, server := setup(t)
		a, err := client.NewInMemory(b, "A")
		require.NoError(t, err)
		got := make(chan events.Envelope, 1)
		_, err = a.OnFunc(ctx, "user.created.v1", func(_ context.Context, env events.Envelope) (any, error) {
			got <- env
			return nil, nil
		})
		require.NoError(t, err)

		conn := dial(t, wsURL(server, "client=R"))
		results := make(chan events.DeliveryResult, 1)
		_, err = conn.OnMessage(func(frame []byte) {
			if _, result, err := events.UnmarshalResult(frame); err == nil {
				results <- result
			}
		})
		require.NoError(t, err)

		frame, err := events.New("user.created.v1", "R", "A", "", map[string]any{"userId": "1"}).MarshalJSON()
		require.NoError(t, err)
		require.NoError(t, conn.Send(ctx, frame))

		select {
		case env := <-got:
			assert.Equal(t, "R", env.Source)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
		select {
		case result := <-results:
			assert.Equal(t, events.ACK, result.Status)
			assert.Equal(t, "A", result.ClientID)
		case <-time.After(2 * time.Second):
			t.Fatal("no result frame")
		}
	})

	t.Run("disconnect unregisters the peer", func(t *testing.T) {
		b, server := setup(t)
		conn := dial(t, wsURL(server, "client=R&subscribe=ping.v1"))

		require.Eventually(t, func() bool { return b.IsSubscribed("R", "ping.v1") }, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool {
			return !b.IsSubscribed("R", "ping.v1") && len(b.Clients()) == 0
		}, 2*time.Second, 10*time.Millisecond)

		<-conn.Done()
		assert.ErrorIs(t, conn.Send(ctx, []byte("x")), ErrClosed)
	})

	t.Run("requires a client id", func(t *testing.T) {
		_, server := setup(t)
		resp, err := http.Get(server.URL + "/?subscribe=ping.v1")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestConnReceivers(t *testing.T) {
	_, server := setup(t)
	conn := dial(t, wsURL(server, "client=R"))

	stop, err := conn.OnMessage(func([]byte) {})
	require.NoError(t, err)
	_, err = conn.OnMessage(func([]byte) {})
	assert.ErrorIs(t, err, ErrAlreadyListening)

	stop()
	stop2, err := conn.OnMessage(func([]byte) {})
	require.NoError(t, err)
	stop2()
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}
