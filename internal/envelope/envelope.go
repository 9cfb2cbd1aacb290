// Package envelope names graph events and pairs them with their payloads for
// delivery across the bridge-to-UI boundary.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/pwbridge/internal/graph"
)

// Kind is the registry change an envelope reports.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
)

// Event names delivered to the UI.
const (
	AddNode       = "add_node"
	AddPort       = "add_port"
	AddLink       = "add_link"
	RemoveID      = "remove_id"
	DebugMessage  = "debug_message"
	FrontendReady = "frontend_ready"
)

var ErrInvalidEnvelope = errors.New("envelope: invalid envelope")

// Name builds the stable "{kind}_{tag}" event name.
func Name(kind Kind, tag string) string {
	return string(kind) + "_" + tag
}

// MessagePayload is the body of a debug_message event.
type MessagePayload struct {
	Message string `json:"message"`
}

// Envelope is one named event and its payload. Seq is assigned by the
// emitting bridge and increases by one per emitted envelope.
type Envelope struct {
	Name    string
	Seq     uint64
	Payload any
}

// Add wraps a translated record. The record is copied by value.
func Add(rec graph.Record) Envelope {
	return Envelope{Name: Name(KindAdd, rec.TypeTag()), Payload: rec}
}

// Remove reports a removed global. Removal notifications carry no type, so
// every removal is a remove_id and the consumer resolves what the id was
// against the add_* events it has already seen.
func Remove(id uint32) Envelope {
	return Envelope{Name: Name(KindRemove, graph.TagID), Payload: graph.IDRecord{ID: id}}
}

// Debug carries a diagnostic line. It is never a graph event.
func Debug(format string, args ...any) Envelope {
	return Envelope{Name: DebugMessage, Payload: MessagePayload{Message: fmt.Sprintf(format, args...)}}
}

func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidEnvelope)
	}
	if e.Payload == nil {
		return fmt.Errorf("%w: missing payload for %s", ErrInvalidEnvelope, e.Name)
	}
	return nil
}

// IsGraphEvent reports whether the envelope describes a registry change.
func (e Envelope) IsGraphEvent() bool {
	return strings.HasPrefix(e.Name, string(KindAdd)+"_") || strings.HasPrefix(e.Name, string(KindRemove)+"_")
}

// wire is the JSON shape sent to UI clients.
type wire struct {
	Event   string          `json:"event"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s payload: %w", e.Name, err)
	}
	return json.Marshal(wire{Event: e.Name, Seq: e.Seq, Payload: payload})
}

// Decoded is the consumer-side view of one envelope; the payload stays raw
// until the consumer picks a type from the event name.
type Decoded struct {
	Event   string          `json:"event"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one wire envelope.
func Decode(data []byte) (Decoded, error) {
	var d Decoded
	if err := json.Unmarshal(data, &d); err != nil {
		return Decoded{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if strings.TrimSpace(d.Event) == "" {
		return Decoded{}, fmt.Errorf("%w: missing event", ErrInvalidEnvelope)
	}
	return d, nil
}

// Record decodes the payload into the typed record named by the event.
func (d Decoded) Record() (graph.Record, error) {
	var (
		rec graph.Record
		err error
	)
	switch d.Event {
	case AddNode:
		var r graph.NodeRecord
		err = json.Unmarshal(d.Payload, &r)
		rec = r
	case AddPort:
		var r graph.PortRecord
		err = json.Unmarshal(d.Payload, &r)
		rec = r
	case AddLink:
		var r graph.LinkRecord
		err = json.Unmarshal(d.Payload, &r)
		rec = r
	case RemoveID:
		var r graph.IDRecord
		err = json.Unmarshal(d.Payload, &r)
		rec = r
	default:
		return nil, fmt.Errorf("%w: %s carries no record", ErrInvalidEnvelope, d.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("envelope: decode %s payload: %w", d.Event, err)
	}
	return rec, nil
}
