package graph

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNilListener      = errors.New("graph: listener has no callbacks")
	ErrConnectionClosed = errors.New("graph: connection closed")
)

// Listener receives registry notifications. Both callbacks run synchronously
// on the goroutine inside Conn.Run, one at a time, in delivery order.
type Listener struct {
	OnAdd    func(obj RawObject)
	OnRemove func(id uint32)
}

// Service is a graph server the bridge can connect to.
type Service interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one live connection to the graph server.
type Conn interface {
	// Registry returns the registry handle of this connection.
	Registry(ctx context.Context) (Registry, error)
	// Run drives the connection's event loop until ctx is done or the
	// connection drops. A nil return means ctx ended the loop.
	Run(ctx context.Context) error
	Close() error
}

// Registry is the catalog of live globals on a connection.
type Registry interface {
	Subscribe(l Listener) (*ListenerHandle, error)
}

// ListenerHandle is the single-owner capability for one installed listener.
// Remove detaches the listener exactly once; later calls are no-ops.
type ListenerHandle struct {
	once   sync.Once
	mu     sync.RWMutex
	active bool
	detach func()
}

// NewListenerHandle wraps the registry-side detach function.
func NewListenerHandle(detach func()) *ListenerHandle {
	return &ListenerHandle{active: true, detach: detach}
}

func (h *ListenerHandle) Active() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

func (h *ListenerHandle) Remove() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.mu.Lock()
		h.active = false
		h.mu.Unlock()
		if h.detach != nil {
			h.detach()
		}
	})
}
