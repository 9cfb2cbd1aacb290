package uiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/danmuck/pwbridge/internal/observability"
	"github.com/danmuck/pwbridge/internal/sink"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBacklogFull means envelopes arrived faster than any UI client attached.
	ErrBacklogFull = errors.New("uiserver: no client attached and backlog full")
	// ErrClientAttached means the hub already served its UI session.
	ErrClientAttached = errors.New("uiserver: ui client already attached")
)

var _ sink.Emitter = (*Hub)(nil)

// Hub delivers envelopes to the UI over one websocket session. The client owns
// a bounded queue drained by one writer goroutine. A full queue blocks Emit
// until the writer makes room; a client that makes no progress within the
// write timeout is disconnected rather than reordered. Envelopes emitted before
// the client attaches are kept in a backlog and replayed to it.
//
// Only one client is served per hub: a later client would receive remove_id
// for adds it never saw. Once the client is gone Emit fails with
// sink.ErrClosed.
type Hub struct {
	queue        int
	writeTimeout time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	clients  map[uint64]*client
	nextID   uint64
	attached bool
	closed   bool
	backlog  [][]byte
}

func NewHub(queue int, writeTimeout time.Duration) *Hub {
	if queue <= 0 {
		queue = DefaultClientQueue
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Hub{
		queue:        queue,
		writeTimeout: writeTimeout,
		log:          log.With().Str("component", "ui_hub").Logger(),
		clients:      make(map[uint64]*client),
	}
}

// Emit is called from the bridge goroutine only. It does not hold the hub lock
// while waiting on a full client queue.
func (h *Hub) Emit(env envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("uiserver: encode %s: %w", env.Name, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return sink.ErrClosed
	}
	if !h.attached {
		defer h.mu.Unlock()
		if len(h.backlog) >= h.queue {
			return ErrBacklogFull
		}
		h.backlog = append(h.backlog, data)
		return nil
	}
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.enqueue(data, h.writeTimeout); err != nil {
			if errors.Is(err, errClientStalled) {
				h.log.Warn().Uint64("client", c.id).Str("event", env.Name).Dur("timeout", h.writeTimeout).
					Msg("client stalled; disconnecting")
			}
			h.mu.Lock()
			h.dropLocked(c.id)
			h.mu.Unlock()
		}
	}
	if h.Clients() == 0 {
		return sink.ErrClosed
	}
	return nil
}

// Attached reports whether the hub has already accepted its client.
func (h *Hub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

// Clients reports how many clients are attached.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later Emit calls fail with sink.ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.flush = true
		h.dropLocked(id)
	}
	return nil
}

// attach registers conn and starts its writer. The client receives the backlog
// before anything else.
func (h *Hub) attach(conn *websocket.Conn) (*client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, sink.ErrClosed
	}
	if h.attached {
		return nil, ErrClientAttached
	}
	h.nextID++
	c := &client{
		id:    h.nextID,
		conn:  conn,
		queue: make(chan []byte, h.queue+len(h.backlog)),
		done:  make(chan struct{}),
	}
	for _, data := range h.backlog {
		c.queue <- data
	}
	h.backlog = nil
	h.attached = true
	h.clients[c.id] = c
	observability.SetUIClients(len(h.clients))
	go h.write(c)
	h.log.Info().Uint64("client", c.id).Str("remote", conn.RemoteAddr().String()).Msg("client attached")
	return c, nil
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		h.dropLocked(c.id)
		h.log.Info().Uint64("client", c.id).Msg("client detached")
	}
}

func (h *Hub) dropLocked(id uint64) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	c.stop()
	observability.SetUIClients(len(h.clients))
}

func (h *Hub) write(c *client) {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-c.done:
			if c.flush {
				h.drain(c)
			}
			return
		case data := <-c.queue:
			if err := h.send(c, data); err != nil {
				h.log.Debug().Err(err).Uint64("client", c.id).Msg("write failed")
				h.detach(c)
				return
			}
		}
	}
}

// drain writes whatever is still queued and says goodbye.
func (h *Hub) drain(c *client) {
	for {
		select {
		case data := <-c.queue:
			if err := h.send(c, data); err != nil {
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge stopped"),
				time.Now().Add(h.writeTimeout))
			return
		}
	}
}

func (h *Hub) send(c *client, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type client struct {
	id    uint64
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
	// flush is set before done closes when the hub shuts down cleanly.
	flush bool
}

var (
	errClientGone    = errors.New("uiserver: client gone")
	errClientStalled = errors.New("uiserver: client stalled")
)

func (c *client) enqueue(data []byte, timeout time.Duration) error {
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return errClientGone
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return errClientGone
	case <-timer.C:
		return errClientStalled
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}
