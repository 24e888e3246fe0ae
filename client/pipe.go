package client

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrPipeClosed is returned when sending on a closed pipe.
var ErrPipeClosed = errors.New("pipe closed")

// Pipe returns the two ends of an in-process Transport.
// Frames sent on one end are delivered asynchronously, in order, to the other.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{inbox: make(chan []byte, 64), done: make(chan struct{})}
	b := &PipeEnd{inbox: make(chan []byte, 64), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// PipeEnd is one end of a Pipe.
type PipeEnd struct {
	peer  *PipeEnd
	inbox chan []byte

	mu      sync.Mutex
	once    sync.Once
	done    chan struct{}
	running bool
}

var _ Transport = (*PipeEnd)(nil)

// Send implements Transport.
func (p *PipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	case <-p.peer.done:
		return ErrPipeClosed
	default:
	}
	select {
	case p.peer.inbox <- slices.Clone(frame):
		return nil
	case <-p.peer.done:
		return ErrPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnMessage implements Transport. An end has a single reader.
func (p *PipeEnd) OnMessage(receive func([]byte)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, errors.New("pipe already has a reader")
	}
	select {
	case <-p.done:
		return nil, ErrPipeClosed
	default:
	}
	p.running = true

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case frame := <-p.inbox:
				receive(frame)
			case <-stop:
				return
			case <-p.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
		})
	}, nil
}

// Close implements io.Closer.
func (p *PipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
