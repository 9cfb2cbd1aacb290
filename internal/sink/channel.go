package sink

import (
	"errors"
	"sync"

	"github.com/danmuck/pwbridge/internal/envelope"
)

// ErrClosed means the consumer side is gone and nothing more can be delivered.
var ErrClosed = errors.New("sink: closed")

// Channel delivers envelopes over a Go channel. Emit blocks while the buffer
// is full so nothing is dropped or reordered; Close from the consumer side
// unblocks it with ErrClosed.
type Channel struct {
	ch   chan envelope.Envelope
	done chan struct{}
	once sync.Once
}

func NewChannel(buffer int) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{
		ch:   make(chan envelope.Envelope, buffer),
		done: make(chan struct{}),
	}
}

func (c *Channel) Emit(env envelope.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.ch <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Events is the receiving end. It is never closed; select on Closed as well.
func (c *Channel) Events() <-chan envelope.Envelope {
	return c.ch
}

func (c *Channel) Closed() <-chan struct{} {
	return c.done
}

// Close marks the consumer gone.
func (c *Channel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Emitter is the write side shared by every sink.
type Emitter interface {
	Emit(env envelope.Envelope) error
}

// Fanout emits to each target in order and stops at the first failure.
type Fanout []Emitter

func (f Fanout) Emit(env envelope.Envelope) error {
	for _, target := range f {
		if target == nil {
			continue
		}
		if err := target.Emit(env); err != nil {
			return err
		}
	}
	return nil
}
