package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/pwbridge/internal/bridge"
	"github.com/danmuck/pwbridge/internal/control"
	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/danmuck/pwbridge/internal/pwdump"
	"github.com/danmuck/pwbridge/internal/sink"
	"github.com/danmuck/pwbridge/internal/tools"
	"github.com/danmuck/pwbridge/internal/uiserver"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidConfig = errors.New("host: invalid config")
	ErrNoSink        = errors.New("host: no sink configured")
)

// Source selects where registry notifications come from.
type Source string

const (
	SourcePWDump Source = "pwdump"
	SourceReplay Source = "replay"
)

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// ServiceConfig configures one bridge process. Empty HTTPAddr or ControlAddr
// disables that surface; an empty NATS.URL disables the NATS sink.
type ServiceConfig struct {
	Source             Source
	Remote             string
	PWDumpPath         string
	ReplayFile         string
	ReplayHold         bool
	HTTPAddr           string
	CORSOrigins        []string
	ControlAddr        string
	ForwardDiagnostics bool
	DiagnosticsLimit   int
	ClientQueue        int
	NATS               NATSConfig
}

func DefaultServiceConfig() ServiceConfig {
	ui := uiserver.DefaultConfig()
	return ServiceConfig{
		Source:           SourcePWDump,
		PWDumpPath:       pwdump.DefaultBinary,
		HTTPAddr:         ui.Addr,
		CORSOrigins:      ui.CORSOrigins,
		ControlAddr:      control.DefaultAddr,
		DiagnosticsLimit: bridge.DefaultDiagnosticsLimit,
		ClientQueue:      ui.ClientQueue,
		NATS: NATSConfig{
			SubjectPrefix: sink.DefaultSubjectPrefix,
		},
	}
}

func (c ServiceConfig) Validate() error {
	switch c.Source {
	case SourcePWDump:
		if strings.TrimSpace(c.PWDumpPath) == "" {
			return fmt.Errorf("%w: pw_dump_path is required for source %q", ErrInvalidConfig, c.Source)
		}
	case SourceReplay:
		if strings.TrimSpace(c.ReplayFile) == "" {
			return fmt.Errorf("%w: replay_file is required for source %q", ErrInvalidConfig, c.Source)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" && strings.TrimSpace(c.NATS.URL) == "" {
		return fmt.Errorf("%w: enable http_addr or nats.url", ErrNoSink)
	}
	if strings.TrimSpace(c.HTTPAddr) == "" && strings.TrimSpace(c.ControlAddr) == "" {
		return fmt.Errorf("%w: no surface can signal frontend_ready; enable http_addr or control_addr", ErrInvalidConfig)
	}
	if c.DiagnosticsLimit < 0 {
		return fmt.Errorf("%w: diagnostics_limit must be >= 0", ErrInvalidConfig)
	}
	if c.ClientQueue < 0 {
		return fmt.Errorf("%w: client_queue must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Service runs one bridge process.
type Service struct {
	cfg     ServiceConfig
	starter tools.Starter
	log     zerolog.Logger

	listening chan struct{}
	mu        sync.RWMutex
	httpAddr  net.Addr
	ctlAddr   net.Addr
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return &Service{
		cfg:       cfg,
		starter:   tools.ExecStarter{},
		log:       log.With().Str("component", "host").Logger(),
		listening: make(chan struct{}),
	}
}

// SetStarter replaces the process starter used for the pwdump source.
func (s *Service) SetStarter(starter tools.Starter) {
	if starter != nil {
		s.starter = starter
	}
}

// Listening is closed once every configured listener is bound.
func (s *Service) Listening() <-chan struct{} {
	return s.listening
}

// HTTPAddr is the bound UI server address, or nil when disabled.
func (s *Service) HTTPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpAddr
}

// ControlAddr is the bound control address, or nil when disabled.
func (s *Service) ControlAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctlAddr
}

// Run blocks until SIGINT/SIGTERM or until the bridge stops.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext runs until ctx ends or the bridge stops. The UI going away and
// a finished replay are orderly exits and return nil.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		targets sink.Fanout
		hub     *uiserver.Hub
		httpLn  net.Listener
		ctlLn   net.Listener
		err     error
	)
	uiCfg := uiserver.Config{
		Addr:        strings.TrimSpace(s.cfg.HTTPAddr),
		CORSOrigins: s.cfg.CORSOrigins,
		ClientQueue: s.cfg.ClientQueue,
	}
	if uiCfg.Addr != "" {
		httpLn, err = net.Listen("tcp", uiCfg.Addr)
		if err != nil {
			return fmt.Errorf("host: listen http: %w", err)
		}
		defer httpLn.Close()
		hub = uiserver.NewHub(uiCfg.ClientQueue, 0)
		targets = append(targets, hub)
	}
	if addr := strings.TrimSpace(s.cfg.ControlAddr); addr != "" {
		ctlLn, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("host: listen control: %w", err)
		}
		defer ctlLn.Close()
	}
	if url := strings.TrimSpace(s.cfg.NATS.URL); url != "" {
		ns, err := sink.DialNATS(sink.NATSConfig{
			URL:           url,
			SubjectPrefix: s.cfg.NATS.SubjectPrefix,
			Name:          "pwbridge",
		})
		if err != nil {
			return fmt.Errorf("host: nats: %w", err)
		}
		defer ns.Close()
		targets = append(targets, ns)
	}
	s.publishAddrs(httpLn, ctlLn)

	b, err := bridge.New(s.graphService(), targets, bridge.Config{
		ForwardDiagnostics: s.cfg.ForwardDiagnostics,
		DiagnosticsLimit:   s.cfg.DiagnosticsLimit,
	})
	if err != nil {
		return err
	}
	s.log.Info().
		Str("bridge_id", b.ID()).
		Str("source", string(s.cfg.Source)).
		Int("sinks", len(targets)).
		Msg("starting bridge")
	handle := b.Spawn(ctx)

	var wg sync.WaitGroup
	serveErr := make(chan error, 2)
	if httpLn != nil {
		srv := uiserver.New(uiCfg, hub, handle)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ServeListener(ctx, httpLn); err != nil {
				serveErr <- fmt.Errorf("host: ui server: %w", err)
			}
		}()
	}
	if ctlLn != nil {
		ctl, err := control.NewServer(handle)
		if err != nil {
			cancel()
			_ = handle.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ctl.ServeListener(ctx, ctlLn); err != nil {
				serveErr <- fmt.Errorf("host: control: %w", err)
			}
		}()
	}
	close(s.listening)

	var runErr error
	select {
	case <-handle.Done():
		runErr = s.exitReason(handle.Wait())
	case runErr = <-serveErr:
		s.log.Error().Err(runErr).Msg("surface failed; stopping bridge")
		cancel()
		_ = handle.Wait()
	}
	cancel()
	wg.Wait()
	return runErr
}

func (s *Service) graphService() graph.Service {
	if s.cfg.Source == SourceReplay {
		return pwdump.Replay{Path: s.cfg.ReplayFile, Hold: s.cfg.ReplayHold}
	}
	return pwdump.NewMonitor(pwdump.Config{
		Binary: s.cfg.PWDumpPath,
		Remote: s.cfg.Remote,
	}, s.starter)
}

// exitReason maps the bridge result onto the process result.
func (s *Service) exitReason(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bridge.ErrEmit) && errors.Is(err, sink.ErrClosed):
		s.log.Info().Msg("ui gone; shutting down")
		return nil
	case s.cfg.Source == SourceReplay && errors.Is(err, graph.ErrConnectionClosed):
		s.log.Info().Msg("replay finished")
		return nil
	default:
		return err
	}
}

func (s *Service) publishAddrs(httpLn, ctlLn net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if httpLn != nil {
		s.httpAddr = httpLn.Addr()
	}
	if ctlLn != nil {
		s.ctlAddr = ctlLn.Addr()
	}
}
