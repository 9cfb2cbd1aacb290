package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/pwbridge/internal/bridge"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr       = "127.0.0.1:7381"
	DefaultDiagLimit  = 20
	idleTimeout       = 30 * time.Second
	maxRequestBytes   = 64 << 10
	ActionStatus      = "status"
	ActionDiagnostics = "diagnostics"
	ActionReady       = "ready"
)

var ErrNilTarget = errors.New("control: nil target")

// Target is the bridge surface exposed to operators. *bridge.Handle
// satisfies it.
type Target interface {
	Ready() bool
	Status() bridge.Status
	Diagnostics(limit int) []bridge.Diagnostic
}

// Request is one control action.
type Request struct {
	Action string `json:"action"`
	Limit  int    `json:"limit,omitempty"`
}

// Response is one control result. Data is action specific.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ReadyResult reports whether this request was the one that fired the gate.
type ReadyResult struct {
	Fired bool `json:"fired"`
}

type Server struct {
	target  Target
	log     zerolog.Logger
	clients atomic.Int64
}

func NewServer(target Target) (*Server, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	return &Server{
		target: target,
		log:    log.With().Str("component", "control").Logger(),
	}, nil
}

// Serve listens on addr until ctx ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn decodes one request per line and writes one response per line.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := s.clients.Add(1)
	s.log.Debug().Str("remote", remote).Int64("active_clients", active).Msg("client connected")
	defer func() {
		remaining := s.clients.Add(-1)
		s.log.Debug().Str("remote", remote).Int64("active_clients", remaining).Msg("client disconnected")
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024), maxRequestBytes)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		if !scanner.Scan() {
			err := scanner.Err()
			if errors.Is(err, bufio.ErrTooLong) {
				_ = writeResponse(conn, Response{OK: false, Error: fmt.Sprintf("request exceeds %d bytes", maxRequestBytes)})
			}
			if err != nil && ctx.Err() == nil {
				s.log.Warn().Err(err).Str("remote", remote).Msg("read")
			}
			return
		}
		line := scanner.Bytes()
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeResponse(conn, Response{OK: false, Error: err.Error()})
			continue
		}
		if err := writeResponse(conn, s.handle(req)); err != nil {
			s.log.Warn().Err(err).Str("remote", remote).Msg("write")
			return
		}
	}
}

func (s *Server) handle(req Request) Response {
	switch strings.TrimSpace(req.Action) {
	case ActionStatus:
		return Response{OK: true, Data: s.target.Status()}
	case ActionDiagnostics:
		limit := req.Limit
		if limit <= 0 {
			limit = DefaultDiagLimit
		}
		return Response{OK: true, Data: s.target.Diagnostics(limit)}
	case ActionReady:
		fired := s.target.Ready()
		s.log.Info().Bool("fired", fired).Msg("readiness signalled over control")
		return Response{OK: true, Data: ReadyResult{Fired: fired}}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
}

func writeResponse(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}
