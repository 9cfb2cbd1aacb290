package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultSubjectPrefix = "pwbridge.events"

// NATSConfig selects the server and subject space for published envelopes.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// NATS publishes each envelope on "<prefix>.<event name>" over one
// connection, which keeps per-publisher ordering.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// DialNATS connects to cfg.URL.
func DialNATS(cfg NATSConfig) (*NATS, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("sink: nats url is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "pwbridge"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("url", url).Msg("sink.NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("sink.NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: connect nats %s: %w", url, err)
	}
	return NewNATS(nc, cfg.SubjectPrefix), nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn, prefix string) *NATS {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{nc: nc, prefix: prefix}
}

// Subject returns the subject an event name is published on.
func (n *NATS) Subject(event string) string {
	return n.prefix + "." + event
}

func (n *NATS) Emit(env envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.Subject(env.Name), data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return fmt.Errorf("sink: publish %s: %w", env.Name, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (n *NATS) Flush() error {
	return n.nc.Flush()
}

func (n *NATS) Close() error {
	if err := n.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}
