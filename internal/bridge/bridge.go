package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/danmuck/pwbridge/internal/readiness"
	"github.com/danmuck/pwbridge/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInit           = errors.New("bridge: initialization failed")
	ErrLifecycleOrder = errors.New("bridge: invalid lifecycle transition")
	ErrEmit           = errors.New("bridge: emission failed")
	ErrNilService     = errors.New("bridge: nil graph service")
	ErrNilSink        = errors.New("bridge: nil sink")
)

// Phase describes bridge lifecycle transitions.
type Phase string

const (
	PhaseCreated           Phase = "created"
	PhaseConnecting        Phase = "connecting"
	PhaseSubscribed        Phase = "subscribed"
	PhaseAwaitingReadiness Phase = "awaiting_readiness"
	PhaseRunning           Phase = "running"
	PhaseStopped           Phase = "stopped"
)

const DefaultDiagnosticsLimit = 64

// Config tunes failure reporting.
type Config struct {
	// ForwardDiagnostics emits a debug_message envelope for every dropped
	// add notification.
	ForwardDiagnostics bool
	// DiagnosticsLimit bounds the in-memory ring of recent failures.
	DiagnosticsLimit int
}

func DefaultConfig() Config {
	return Config{DiagnosticsLimit: DefaultDiagnosticsLimit}
}

// Bridge runs once. After Run returns the bridge stays in PhaseStopped.
type Bridge struct {
	id      string
	cfg     Config
	service graph.Service
	out     sink.Emitter
	gate    *readiness.Gate
	log     zerolog.Logger

	mu       sync.RWMutex
	phase    Phase
	counters Counters
	lastErr  error
	diags    []Diagnostic

	// Owned by the goroutine inside Run.
	seq      uint64
	halted   bool
	emitErr  error
	stopLoop context.CancelFunc
}

func New(service graph.Service, out sink.Emitter, cfg Config) (*Bridge, error) {
	if service == nil {
		return nil, ErrNilService
	}
	if out == nil {
		return nil, ErrNilSink
	}
	if cfg.DiagnosticsLimit <= 0 {
		cfg.DiagnosticsLimit = DefaultDiagnosticsLimit
	}
	id := uuid.NewString()
	return &Bridge{
		id:      id,
		cfg:     cfg,
		service: service,
		out:     out,
		gate:    readiness.New(),
		log:     log.With().Str("component", "bridge").Str("bridge_id", id).Logger(),
		phase:   PhaseCreated,
		diags:   make([]Diagnostic, 0, cfg.DiagnosticsLimit),
	}, nil
}

func (b *Bridge) ID() string {
	return b.id
}

// Gate is the readiness gate scoped to this bridge.
func (b *Bridge) Gate() *readiness.Gate {
	return b.gate
}

// Ready signals the readiness gate. Only the first call has an effect.
func (b *Bridge) Ready() bool {
	fired := b.gate.Signal()
	if fired {
		b.log.Info().Msg("frontend ready")
	}
	return fired
}

// Run connects, subscribes, waits for readiness and drives the run loop on the
// calling goroutine. It returns nil when ctx ends the bridge, an ErrInit
// wrapped error when startup fails, an ErrEmit wrapped error when the sink
// rejected an envelope, and the run loop's error when the connection drops.
func (b *Bridge) Run(ctx context.Context) (err error) {
	if err := b.transition(PhaseCreated, PhaseConnecting); err != nil {
		return err
	}
	defer func() { b.stop(err) }()

	b.log.Debug().Msg("connecting to graph service")
	conn, err := b.service.Connect(ctx)
	if err != nil {
		return initError("connect", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			b.log.Warn().Err(cerr).Msg("close connection")
		}
	}()

	registry, err := conn.Registry(ctx)
	if err != nil {
		return initError("registry", err)
	}
	handle, err := registry.Subscribe(graph.Listener{
		OnAdd:    b.handleAdd,
		OnRemove: b.handleRemove,
	})
	if err != nil {
		return initError("subscribe", err)
	}
	defer handle.Remove()

	if err := b.transition(PhaseConnecting, PhaseSubscribed); err != nil {
		return err
	}
	if err := b.transition(PhaseSubscribed, PhaseAwaitingReadiness); err != nil {
		return err
	}
	b.log.Info().Msg("subscribed; awaiting frontend readiness")
	if err := b.gate.Wait(ctx); err != nil {
		b.log.Info().Msg("shutdown before frontend readiness")
		return nil
	}
	if err := b.transition(PhaseAwaitingReadiness, PhaseRunning); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.stopLoop = cancel
	b.log.Info().Msg("entering run loop")
	runErr := conn.Run(loopCtx)
	cancel()

	switch {
	case b.emitErr != nil:
		return fmt.Errorf("%w: %w", ErrEmit, b.emitErr)
	case runErr != nil:
		return fmt.Errorf("bridge: run loop: %w", runErr)
	}
	return nil
}

func (b *Bridge) transition(from, to Phase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != from {
		return transitionError(b.phase, to)
	}
	b.phase = to
	b.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("phase")
	return nil
}

func (b *Bridge) stop(err error) {
	b.mu.Lock()
	b.phase = PhaseStopped
	if err != nil {
		b.lastErr = err
	}
	b.mu.Unlock()

	event := b.log.Info()
	if err != nil {
		event = b.log.Error().Err(err)
	}
	event.Msg("bridge stopped")
}

func initError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInit, stage, err)
}

func transitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, from, to)
}
