// Package readiness provides the one-shot gate that holds the bridge's run
// loop until the UI has attached its listeners.
package readiness

import (
	"context"
	"sync"
)

// Gate fires at most once. Waiters block until the first Signal and return
// immediately on every call after that.
type Gate struct {
	once sync.Once
	done chan struct{}
}

func New() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Signal fires the gate. It reports true only for the call that fired it.
func (g *Gate) Signal() bool {
	fired := false
	g.once.Do(func() {
		close(g.done)
		fired = true
	})
	return fired
}

// Wait blocks until the gate fires or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	default:
	}
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) Fired() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func (g *Gate) Done() <-chan struct{} {
	return g.done
}
