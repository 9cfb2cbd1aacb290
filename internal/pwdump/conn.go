package pwdump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/rs/zerolog/log"
)

// conn drives one pw-dump stream. Run must be called from a single goroutine;
// listener callbacks execute on it synchronously.
type conn struct {
	source string
	dec    *json.Decoder
	stop   func() error
	wait   func() error
	hold   bool

	mu        sync.Mutex
	listeners map[uint64]graph.Listener
	nextID    uint64

	// ids currently live according to the stream; touched only by Run.
	known map[uint32]struct{}

	closeOnce sync.Once
	closeErr  error
}

func newConn(source string, r io.Reader, stop, wait func() error) *conn {
	if stop == nil {
		stop = func() error { return nil }
	}
	if wait == nil {
		wait = func() error { return nil }
	}
	var (
		stopOnce sync.Once
		stopErr  error
	)
	return &conn{
		source: source,
		dec:    json.NewDecoder(r),
		stop: func() error {
			stopOnce.Do(func() { stopErr = stop() })
			return stopErr
		},
		wait:      wait,
		listeners: make(map[uint64]graph.Listener),
		known:     make(map[uint32]struct{}),
	}
}

func (c *conn) Registry(ctx context.Context) (graph.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return (*registry)(c), nil
}

func (c *conn) Run(ctx context.Context) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.stop()
		case <-stopped:
		}
	}()

	for {
		var batch []dumpObject
		if err := c.dec.Decode(&batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return c.ended(ctx)
			}
			return fmt.Errorf("%w: %s: %v", graph.ErrConnectionClosed, c.source, err)
		}
		for _, obj := range batch {
			c.dispatch(obj)
		}
	}
}

// ended handles the end of the stream: a live monitor exiting is a dropped
// connection, a held replay waits for shutdown.
func (c *conn) ended(ctx context.Context) error {
	if c.hold {
		log.Info().Str("source", c.source).Msg("pwdump replay finished, holding")
		<-ctx.Done()
		return nil
	}
	if err := c.wait(); err != nil {
		return fmt.Errorf("%w: %s: %v", graph.ErrConnectionClosed, c.source, err)
	}
	return fmt.Errorf("%w: %s: end of stream", graph.ErrConnectionClosed, c.source)
}

func (c *conn) dispatch(obj dumpObject) {
	if obj.removed() {
		if _, ok := c.known[obj.ID]; !ok {
			return
		}
		delete(c.known, obj.ID)
		for _, l := range c.snapshot() {
			if l.OnRemove != nil {
				l.OnRemove(obj.ID)
			}
		}
		return
	}
	if _, ok := c.known[obj.ID]; ok {
		return
	}
	raw, err := obj.raw()
	if err != nil {
		log.Warn().Err(err).Str("source", c.source).Msg("pwdump object skipped")
		return
	}
	c.known[obj.ID] = struct{}{}
	for _, l := range c.snapshot() {
		if l.OnAdd != nil {
			l.OnAdd(raw)
		}
	}
}

func (c *conn) snapshot() []graph.Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]graph.Listener, 0, len(c.listeners))
	for id := uint64(1); id <= c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.stop()
		_ = c.wait()
	})
	return c.closeErr
}

type registry conn

func (r *registry) Subscribe(l graph.Listener) (*graph.ListenerHandle, error) {
	if l.OnAdd == nil && l.OnRemove == nil {
		return nil, graph.ErrNilListener
	}
	c := (*conn)(r)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	c.mu.Unlock()

	return graph.NewListenerHandle(func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}), nil
}
