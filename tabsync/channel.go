package tabsync

import (
	"context"
	"errors"
)

// ChannelName is the reserved name every synchronizer communicates on.
const ChannelName = "__courier_tab_sync__"

// ErrClosed is returned when using a channel after Close.
var ErrClosed = errors.New("channel closed")

// Channel is the capability a synchronizer needs from a broadcast medium.
type Channel interface {
	// Post sends a frame to every other participant of the channel.
	Post(ctx context.Context, frame []byte) error
	// Listen installs the receiver for inbound frames. The returned function stops listening.
	Listen(receive func(frame []byte)) (stop func(), err error)
	// Close releases the channel.
	Close() error
}
