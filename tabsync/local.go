package tabsync

import (
	"context"
	"slices"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/courier/pkg/uuidx"
)

// LocalHub connects in-process channels by name. A frame posted on one channel
// reaches every other open channel with the same name, never the poster.
// Delivery is asynchronous, like a browser BroadcastChannel.
type LocalHub struct {
	channels *haxmap.Map[string, *LocalChannel]
}

// NewLocalHub creates an empty hub.
func NewLocalHub() *LocalHub {
	return &LocalHub{channels: haxmap.New[string, *LocalChannel]()}
}

// Open joins the channel called name.
func (h *LocalHub) Open(name string) *LocalChannel {
	ch := &LocalChannel{
		id:   uuidx.NewString(),
		name: name,
		hub:  h,
	}
	h.channels.Set(ch.id, ch)
	return ch
}

// Len returns the number of open channels.
func (h *LocalHub) Len() int {
	return int(h.channels.Len())
}

// LocalChannel is one participant of a LocalHub.
type LocalChannel struct {
	id   string
	name string
	hub  *LocalHub

	mu      sync.RWMutex
	receive func([]byte)
	closed  bool
}

var _ Channel = (*LocalChannel)(nil)

// Post implements Channel.
func (c *LocalChannel) Post(ctx context.Context, frame []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.hub.channels.ForEach(func(id string, peer *LocalChannel) bool {
		if id == c.id || peer.name != c.name {
			return true
		}
		go peer.deliver(slices.Clone(frame))
		return true
	})
	return nil
}

func (c *LocalChannel) deliver(frame []byte) {
	c.mu.RLock()
	receive, closed := c.receive, c.closed
	c.mu.RUnlock()
	if closed || receive == nil {
		return
	}
	receive(frame)
}

// Listen implements Channel. A channel has at most one receiver; listening again replaces it.
func (c *LocalChannel) Listen(receive func([]byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.receive = receive
	return func() {
		c.mu.Lock()
		c.receive = nil
		c.mu.Unlock()
	}, nil
}

// Close implements Channel.
func (c *LocalChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.receive = nil
	c.hub.channels.Del(c.id)
	return nil
}
