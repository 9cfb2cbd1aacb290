package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var ErrBinaryNotFound = errors.New("tools: binary not found")

// Process is one started command whose stdout is consumed as a stream.
type Process interface {
	Stdout() io.Reader
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
	// Stop terminates the process. Safe to call more than once.
	Stop() error
}

// Starter abstracts process launching for runtime adapters.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecStarter launches processes on the local host.
type ExecStarter struct{}

// tools process starter backed by os/exec.
func (ExecStarter) Start(ctx context.Context, name string, args ...string) (Process, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinaryNotFound, name, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("tools: start %s: %w", name, err)
	}
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr lockedBuffer

	waitOnce sync.Once
	waitErr  error
	stopOnce sync.Once
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
		}
		p.waitErr = err
	})
	return p.waitErr
}

func (p *execProcess) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
	})
	return err
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
