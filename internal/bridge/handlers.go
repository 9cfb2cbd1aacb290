package bridge

import (
	"errors"

	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/danmuck/pwbridge/internal/observability"
)

func (b *Bridge) handleAdd(raw graph.RawObject) {
	if b.halted {
		return
	}
	observability.RecordNotification(string(envelope.KindAdd), raw.Type.String())

	rec, err := graph.Translate(raw)
	if err != nil {
		b.translationFailed(raw, err)
		return
	}
	b.count(func(c *Counters) { c.Adds++ })
	b.emit(envelope.Add(rec))
}

func (b *Bridge) handleRemove(id uint32) {
	if b.halted {
		return
	}
	observability.RecordNotification(string(envelope.KindRemove), graph.TagID)
	b.count(func(c *Counters) { c.Removes++ })
	b.emit(envelope.Remove(id))
}

func (b *Bridge) translationFailed(raw graph.RawObject, err error) {
	if errors.Is(err, graph.ErrUnsupportedType) {
		b.count(func(c *Counters) { c.Skipped++ })
		return
	}

	diag := newDiagnostic(raw, err)
	observability.RecordTranslationFailure(diag.Type, diag.Field)
	b.log.Warn().
		Uint32("object_id", raw.ID).
		Str("type", diag.Type).
		Str("field", diag.Field).
		Err(err).
		Msg("dropping malformed registry object")
	b.record(diag)

	if b.cfg.ForwardDiagnostics {
		b.emit(envelope.Debug("dropped %s %d: %s", diag.Type, raw.ID, diag.Message))
	}
}

// emit hands one envelope to the sink. The first failure halts the bridge:
// later notifications are ignored and the run loop is cancelled, while the
// callback itself returns normally.
func (b *Bridge) emit(env envelope.Envelope) {
	if b.halted {
		return
	}
	env.Seq = b.seq + 1
	if err := b.out.Emit(env); err != nil {
		b.halted = true
		b.emitErr = err
		b.log.Warn().Err(err).Str("event", env.Name).Uint64("seq", env.Seq).Msg("sink rejected envelope; stopping")
		if b.stopLoop != nil {
			b.stopLoop()
		}
		return
	}
	b.seq = env.Seq
	observability.RecordEmitted(env.Name)
	b.count(func(c *Counters) { c.Emitted++ })
}
