package bridge

import (
	"context"
	"runtime"
)

// Handle is the host side of a spawned bridge.
type Handle struct {
	bridge *Bridge
	done   chan struct{}
	err    error
}

// Spawn runs the bridge on its own goroutine locked to an OS thread, since the
// run loop owns thread-affine state for its whole lifetime.
func (b *Bridge) Spawn(ctx context.Context) *Handle {
	h := &Handle{bridge: b, done: make(chan struct{})}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(h.done)
		h.err = b.Run(ctx)
	}()
	return h
}

// Wait blocks until the bridge goroutine has returned.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Ready signals the bridge's readiness gate.
func (h *Handle) Ready() bool {
	return h.bridge.Ready()
}

func (h *Handle) Status() Status {
	return h.bridge.Status()
}

func (h *Handle) Diagnostics(limit int) []Diagnostic {
	return h.bridge.Diagnostics(limit)
}

func (h *Handle) Bridge() *Bridge {
	return h.bridge
}
