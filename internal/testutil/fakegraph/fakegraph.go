// Package fakegraph is an in-memory graph service for tests. Notifications
// queued with Add and Remove are delivered, in order, only while Run is
// executing, the way a foreign event loop holds them until it is entered.
package fakegraph

import (
	"context"
	"sync"

	"github.com/danmuck/pwbridge/internal/graph"
)

type op struct {
	add    *graph.RawObject
	remove uint32
}

// Service implements graph.Service.
type Service struct {
	ConnectErr   error
	RegistryErr  error
	SubscribeErr error

	mu        sync.Mutex
	queue     []op
	notify    chan struct{}
	dropped   chan struct{}
	dropOnce  sync.Once
	running   chan struct{}
	runOnce   sync.Once
	listeners map[uint64]graph.Listener
	nextID    uint64
	closes    int
	delivered int
}

func New() *Service {
	return &Service{
		notify:    make(chan struct{}, 1),
		dropped:   make(chan struct{}),
		running:   make(chan struct{}),
		listeners: make(map[uint64]graph.Listener),
	}
}

// Add queues an add notification. Props are copied.
func (s *Service) Add(id uint32, t graph.ObjectType, props map[string]string) {
	copied := make(graph.Properties, len(props))
	for k, v := range props {
		copied[k] = v
	}
	obj := graph.RawObject{ID: id, Type: t, Props: copied}
	s.push(op{add: &obj})
}

// Remove queues a remove notification.
func (s *Service) Remove(id uint32) {
	s.push(op{remove: id})
}

// Drop ends the connection once every queued notification is delivered.
func (s *Service) Drop() {
	s.dropOnce.Do(func() { close(s.dropped) })
}

// Running is closed when Run is first entered.
func (s *Service) Running() <-chan struct{} {
	return s.running
}

func (s *Service) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Service) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Delivered counts notifications handed to listeners.
func (s *Service) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Service) push(o op) {
	s.mu.Lock()
	s.queue = append(s.queue, o)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Service) Connect(ctx context.Context) (graph.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ConnectErr != nil {
		return nil, s.ConnectErr
	}
	return (*conn)(s), nil
}

type conn Service

func (c *conn) Registry(context.Context) (graph.Registry, error) {
	if c.RegistryErr != nil {
		return nil, c.RegistryErr
	}
	return (*registry)(c), nil
}

func (c *conn) Run(ctx context.Context) error {
	s := (*Service)(c)
	s.runOnce.Do(func() { close(s.running) })
	for {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			listeners := s.snapshotLocked()
			s.delivered++
			s.mu.Unlock()

			for _, l := range listeners {
				if next.add != nil {
					if l.OnAdd != nil {
						l.OnAdd(*next.add)
					}
				} else if l.OnRemove != nil {
					l.OnRemove(next.remove)
				}
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.notify:
		case <-s.dropped:
			s.mu.Lock()
			pending := len(s.queue)
			s.mu.Unlock()
			if pending == 0 {
				return graph.ErrConnectionClosed
			}
		}
	}
}

func (c *conn) Close() error {
	s := (*Service)(c)
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *Service) snapshotLocked() []graph.Listener {
	out := make([]graph.Listener, 0, len(s.listeners))
	for id := uint64(1); id <= s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

type registry Service

func (r *registry) Subscribe(l graph.Listener) (*graph.ListenerHandle, error) {
	s := (*Service)(r)
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	if l.OnAdd == nil && l.OnRemove == nil {
		return nil, graph.ErrNilListener
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	s.mu.Unlock()
	return graph.NewListenerHandle(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}), nil
}
