package tabsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/courier/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// NATSChannel carries frames on a NATS subject. NATS delivers a frame to its
// own publisher as well; the synchronizer discards those by session id.
// The connection is owned by the caller and left open by Close.
type NATSChannel struct {
	conn    *nats.Conn
	subject string

	mu     sync.Mutex
	sub    *nats.Subscription
	closed bool
}

var _ Channel = (*NATSChannel)(nil)

// NewNATSChannel creates a channel on subject, or on ChannelName when subject is empty.
func NewNATSChannel(conn *nats.Conn, subject string) *NATSChannel {
	if subject == "" {
		subject = ChannelName
	}
	return &NATSChannel{conn: conn, subject: subject}
}

// Subject returns the NATS subject frames are published on.
func (c *NATSChannel) Subject() string {
	return c.subject
}

// Post implements Channel.
func (c *NATSChannel) Post(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(c.subject, frame); err != nil {
		return fmt.Errorf("publish %s: %w", c.subject, err)
	}
	return nil
}

// Listen implements Channel.
func (c *NATSChannel) Listen(receive func([]byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.sub != nil {
		c.unsubscribe()
	}

	sub, err := c.conn.Subscribe(c.subject, func(msg *nats.Msg) {
		receive(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	// make sure the subscription is registered with the server before anyone posts
	if err := c.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush %s: %w", c.subject, err)
	}
	c.sub = sub

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sub == sub {
			c.unsubscribe()
		}
	}, nil
}

// unsubscribe must be called with mu held.
func (c *NATSChannel) unsubscribe() {
	if err := c.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subject", c.subject))
	}
	c.sub = nil
}

// Close implements Channel.
func (c *NATSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.sub != nil {
		c.unsubscribe()
	}
	return nil
}
