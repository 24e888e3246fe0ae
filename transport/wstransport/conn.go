// Package wstransport carries client frames over WebSocket connections.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/casualjim/courier/client"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned when using a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrAlreadyListening is returned when a second receiver is attached to a connection.
	ErrAlreadyListening = errors.New("connection already has a receiver")
)

// ConnOption configures a Conn.
type ConnOption = opts.Option[Conn]

var (
	// WithWriteTimeout bounds every write. Defaults to 5s.
	WithWriteTimeout = opts.ForName[Conn, time.Duration]("writeTimeout")

	// WithPingInterval sets how often keepalive pings are sent. Defaults to 30s.
	WithPingInterval = opts.ForName[Conn, time.Duration]("pingInterval")

	// WithConnLogger sets the logger.
	WithConnLogger = opts.ForName[Conn, *slog.Logger]("logger")
)

// Conn is a client.Transport over one WebSocket connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	receive   func([]byte)
	listening bool
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

var _ client.Transport = (*Conn)(nil)

// NewConn wraps an established websocket connection and starts its keepalive.
func NewConn(ws *websocket.Conn, options ...ConnOption) (*Conn, error) {
	c := &Conn{
		ws:           ws,
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
		done:         make(chan struct{}),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	c.logger = slogx.Named(c.logger, "wstransport").With(slog.String("remote", ws.RemoteAddr().String()))

	go c.heartbeatLoop()
	return c, nil
}

// Dial connects to a courier websocket endpoint.
func Dial(ctx context.Context, url string, options ...ConnOption) (*Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	header := http.Header{}
	header.Set("Accept", "application/json")

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c, err := NewConn(ws, options...)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send implements client.Transport.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// OnMessage implements client.Transport. The first call starts the read loop;
// the returned function detaches the receiver without closing the connection.
func (c *Conn) OnMessage(receive func([]byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.receive != nil {
		return nil, ErrAlreadyListening
	}
	c.receive = receive
	if !c.listening {
		c.listening = true
		go c.readLoop()
	}
	return func() {
		c.mu.Lock()
		c.receive = nil
		c.mu.Unlock()
	}, nil
}

func (c *Conn) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("websocket read failed", slogx.Error(err))
				}
			}
			return
		}

		c.mu.Lock()
		receive := c.receive
		c.mu.Unlock()
		if receive != nil {
			receive(data)
		}
	}
}

func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", slogx.Error(err))
			}
		}
	}
}

// Close implements io.Closer. It sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.shutdown()
}

func (c *Conn) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.receive = nil
		c.mu.Unlock()
		close(c.done)
		err = c.ws.Close()
	})
	return err
}
