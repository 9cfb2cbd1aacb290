package pwdump

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/danmuck/pwbridge/internal/tools"
)

const DefaultBinary = "pw-dump"

// Config selects the pw-dump binary and the remote daemon to monitor.
type Config struct {
	Binary string
	Remote string
}

// Args returns the pw-dump command line for cfg.
func (cfg Config) Args() []string {
	args := []string{"--monitor", "--no-colors"}
	if remote := strings.TrimSpace(cfg.Remote); remote != "" {
		args = append(args, "--remote", remote)
	}
	return args
}

// Monitor is a live graph service backed by a pw-dump subprocess.
type Monitor struct {
	cfg     Config
	starter tools.Starter
}

var _ graph.Service = (*Monitor)(nil)

func NewMonitor(cfg Config, starter tools.Starter) *Monitor {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	if starter == nil {
		starter = tools.ExecStarter{}
	}
	return &Monitor{cfg: cfg, starter: starter}
}

// Connect launches pw-dump. The process lives until ctx ends or the
// connection is closed.
func (m *Monitor) Connect(ctx context.Context) (graph.Conn, error) {
	proc, err := m.starter.Start(ctx, m.cfg.Binary, m.cfg.Args()...)
	if err != nil {
		return nil, fmt.Errorf("pwdump: connect: %w", err)
	}
	return newConn(m.cfg.Binary, proc.Stdout(), proc.Stop, proc.Wait), nil
}

// Replay is a graph service that plays back a captured pw-dump stream.
// With Hold set, Run keeps the connection open after the capture ends.
type Replay struct {
	Path string
	Hold bool
}

var _ graph.Service = Replay{}

func (r Replay) Connect(ctx context.Context) (graph.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, fmt.Errorf("pwdump: open replay: %w", err)
	}
	c := newConn(r.Path, f, f.Close, nil)
	c.hold = r.Hold
	return c, nil
}
