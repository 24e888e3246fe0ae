// Package natstransport carries client frames over NATS.
//
// Every client owns two subjects below a prefix: frames for the peer are
// published on "<prefix>.<client>.down", frames from the peer arrive on
// "<prefix>.<client>.up". The broker side uses ForClient and the remote side
// ForPeer, which swaps the two.
package natstransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used unless WithPrefix says otherwise.
const DefaultPrefix = "courier.clients"

// ErrClosed is returned when using a closed transport.
var ErrClosed = errors.New("transport closed")

// Option configures a Transport.
type Option = opts.Option[Transport]

var (
	// WithPrefix changes the subject prefix.
	WithPrefix = opts.ForName[Transport, string]("prefix")

	// WithLogger sets the logger.
	WithLogger = opts.ForName[Transport, *slog.Logger]("logger")
)

// Transport is a client.Transport on a pair of NATS subjects.
// The connection is owned by the caller and left open by Close.
type Transport struct {
	conn    *nats.Conn
	prefix  string
	logger  *slog.Logger
	publish string
	listen  string

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

var _ client.Transport = (*Transport)(nil)

// Subjects returns the subjects carrying frames toward and from the peer of clientID.
func Subjects(prefix, clientID string) (down, up string) {
	return prefix + "." + clientID + ".down", prefix + "." + clientID + ".up"
}

// ForClient creates the broker side of the transport for clientID.
func ForClient(conn *nats.Conn, clientID string, options ...Option) (*Transport, error) {
	return newTransport(conn, clientID, false, options)
}

// ForPeer creates the remote side of the transport for clientID.
func ForPeer(conn *nats.Conn, clientID string, options ...Option) (*Transport, error) {
	return newTransport(conn, clientID, true, options)
}

func newTransport(conn *nats.Conn, clientID string, peer bool, options []Option) (*Transport, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	t := &Transport{conn: conn, prefix: DefaultPrefix}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}

	down, up := Subjects(t.prefix, clientID)
	if peer {
		t.publish, t.listen = up, down
	} else {
		t.publish, t.listen = down, up
	}
	t.logger = slogx.Named(t.logger, "natstransport").With(slog.String("subject", t.listen))
	return t, nil
}

// Send implements client.Transport.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.Publish(t.publish, frame); err != nil {
		return fmt.Errorf("publish %s: %w", t.publish, err)
	}
	return nil
}

// OnMessage implements client.Transport. Listening again replaces the previous receiver.
func (t *Transport) OnMessage(receive func([]byte)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.sub != nil {
		t.unsubscribe()
	}

	sub, err := t.conn.Subscribe(t.listen, func(msg *nats.Msg) {
		receive(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t.listen, err)
	}
	if err := t.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush %s: %w", t.listen, err)
	}
	t.sub = sub

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.sub == sub {
			t.unsubscribe()
		}
	}, nil
}

// unsubscribe must be called with mu held.
func (t *Transport) unsubscribe() {
	if err := t.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		t.logger.Error("failed to unsubscribe", slogx.Error(err))
	}
	t.sub = nil
}

// Close implements io.Closer.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sub != nil {
		t.unsubscribe()
	}
	return nil
}
