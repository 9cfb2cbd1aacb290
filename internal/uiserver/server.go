package uiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/pwbridge/internal/bridge"
	"github.com/danmuck/pwbridge/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr         = "127.0.0.1:7380"
	DefaultClientQueue  = 1024
	DefaultWriteTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Bridge is the slice of a running bridge the HTTP surface needs.
// *bridge.Handle satisfies it.
type Bridge interface {
	Ready() bool
	Status() bridge.Status
	Diagnostics(limit int) []bridge.Diagnostic
}

type Config struct {
	Addr         string
	CORSOrigins  []string
	ClientQueue  int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:         DefaultAddr,
		CORSOrigins:  []string{"http://localhost:3000"},
		ClientQueue:  DefaultClientQueue,
		WriteTimeout: DefaultWriteTimeout,
	}
}

type Server struct {
	cfg      Config
	hub      *Hub
	bridge   Bridge
	router   *gin.Engine
	upgrader websocket.Upgrader
	started  time.Time
	log      zerolog.Logger
}

func New(cfg Config, hub *Hub, b Bridge) *Server {
	observability.RegisterMetrics()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	origins := normalizeOrigins(cfg.CORSOrigins)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, "/health", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware("pwbridge"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		bridge:  b,
		router:  r,
		started: time.Now(),
		log:     log.With().Str("component", "uiserver").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// Serve listens on cfg.Addr until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends, then shuts down gracefully and
// disconnects websocket clients.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("ui server listening")

	select {
	case <-ctx.Done():
		_ = s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		out = append(out, "http://localhost:3000")
	}
	return out
}

// originChecker accepts same-host requests without an Origin header and any
// configured CORS origin.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}
