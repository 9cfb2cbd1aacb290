package uiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readLimit = 4096

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		status := s.bridge.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.started).String(),
			"service":   "pwbridge",
			"bridge_id": status.ID,
			"phase":     status.Phase,
			"clients":   s.hub.Clients(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.bridge.Status())
	})

	s.router.GET("/diagnostics", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, gin.H{"diagnostics": s.bridge.Diagnostics(limit)})
	})

	s.router.POST("/"+envelope.FrontendReady, func(c *gin.Context) {
		fired := s.bridge.Ready()
		c.JSON(http.StatusOK, gin.H{"ready": true, "fired": fired})
	})

	s.router.GET("/events", s.handleEvents)
}

// handleEvents upgrades to a websocket, attaches the client to the hub and
// reads client messages until the connection ends. The only client message
// with meaning is {"event":"frontend_ready"}.
func (s *Server) handleEvents(c *gin.Context) {
	if s.hub.Attached() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrClientAttached.Error()})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", c.Request.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	cl, err := s.hub.attach(conn)
	if err != nil {
		code, reason := websocket.CloseGoingAway, "shutting down"
		if errors.Is(err, ErrClientAttached) {
			code, reason = websocket.ClosePolicyViolation, "ui client already attached"
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.hub.detach(cl)

	conn.SetReadLimit(readLimit)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug().Err(err).Uint64("client", cl.id).Msg("ignoring malformed client message")
			continue
		}
		switch msg.Event {
		case envelope.FrontendReady:
			if s.bridge.Ready() {
				s.log.Info().Uint64("client", cl.id).Msg("readiness signalled over websocket")
			}
		default:
			s.log.Debug().Str("event", msg.Event).Uint64("client", cl.id).Msg("ignoring client event")
		}
	}
}
