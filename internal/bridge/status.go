package bridge

import (
	"errors"
	"time"

	"github.com/danmuck/pwbridge/internal/graph"
)

// Counters tallies what the bridge has seen and emitted.
type Counters struct {
	Adds     uint64 `json:"adds"`
	Removes  uint64 `json:"removes"`
	Skipped  uint64 `json:"skipped"`
	Failures uint64 `json:"failures"`
	Emitted  uint64 `json:"emitted"`
}

// Status is a point-in-time snapshot of one bridge.
type Status struct {
	ID        string   `json:"id"`
	Phase     Phase    `json:"phase"`
	Ready     bool     `json:"ready"`
	Counters  Counters `json:"counters"`
	LastError string   `json:"last_error,omitempty"`
}

// Diagnostic records one dropped add notification.
type Diagnostic struct {
	At       time.Time `json:"at"`
	ObjectID uint32    `json:"object_id"`
	Type     string    `json:"type"`
	Field    string    `json:"field,omitempty"`
	Value    string    `json:"value,omitempty"`
	Message  string    `json:"message"`
}

func newDiagnostic(raw graph.RawObject, err error) Diagnostic {
	d := Diagnostic{
		At:       time.Now().UTC(),
		ObjectID: raw.ID,
		Type:     raw.Type.String(),
		Message:  err.Error(),
	}
	var fe *graph.FieldError
	if errors.As(err, &fe) {
		d.Field = fe.Field
		d.Value = fe.Value
	}
	return d
}

func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Status{
		ID:       b.id,
		Phase:    b.phase,
		Ready:    b.gate.Fired(),
		Counters: b.counters,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// Diagnostics returns up to limit recent failures, oldest first. A limit of
// zero or less returns everything retained.
func (b *Bridge) Diagnostics(limit int) []Diagnostic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if limit <= 0 || len(b.diags) <= limit {
		out := make([]Diagnostic, len(b.diags))
		copy(out, b.diags)
		return out
	}
	out := make([]Diagnostic, limit)
	copy(out, b.diags[len(b.diags)-limit:])
	return out
}

func (b *Bridge) record(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters.Failures++
	if len(b.diags) >= b.cfg.DiagnosticsLimit {
		copy(b.diags, b.diags[1:])
		b.diags = b.diags[:len(b.diags)-1]
	}
	b.diags = append(b.diags, d)
}

func (b *Bridge) count(fn func(*Counters)) {
	b.mu.Lock()
	fn(&b.counters)
	b.mu.Unlock()
}
