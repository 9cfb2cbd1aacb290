package graph

import (
	"errors"
	"fmt"
	"strconv"
)

// Registry property keys read by the translator.
const (
	KeyObjectSerial    = "object.serial"
	KeyNodeNick        = "node.nick"
	KeyNodeName        = "node.name"
	KeyNodeDescription = "node.description"
	KeyNodeID          = "node.id"
	KeyPortID          = "port.id"
	KeyFormatDSP       = "format.dsp"
	KeyAudioChannel    = "audio.channel"
	KeyPortName        = "port.name"
	KeyPortDirection   = "port.direction"
	KeyLinkInputPort   = "link.input.port"
	KeyLinkOutputPort  = "link.output.port"
	KeyLinkInputNode   = "link.input.node"
	KeyLinkOutputNode  = "link.output.node"
)

var (
	ErrUnsupportedType = errors.New("graph: unsupported object type")
	ErrMissingField    = errors.New("graph: missing field")
	ErrInvalidField    = errors.New("graph: invalid field")
)

// FieldError reports a required property that was absent or did not parse as
// an unsigned 32-bit integer.
type FieldError struct {
	ObjectID uint32
	Type     ObjectType
	Field    string
	Value    string
	Reason   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Reason, ErrInvalidField) {
		return fmt.Sprintf("%v: %s %d %q=%q", e.Reason, e.Type, e.ObjectID, e.Field, e.Value)
	}
	return fmt.Sprintf("%v: %s %d %q", e.Reason, e.Type, e.ObjectID, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Reason
}

// Translate converts a raw registry object into its typed record.
// Objects of TypeOther yield ErrUnsupportedType; a missing or unparsable
// required property yields a *FieldError.
func Translate(raw RawObject) (Record, error) {
	switch raw.Type {
	case TypeNode:
		return translateNode(raw)
	case TypePort:
		return translatePort(raw)
	case TypeLink:
		return translateLink(raw)
	default:
		return nil, fmt.Errorf("%w: id=%d", ErrUnsupportedType, raw.ID)
	}
}

func translateNode(raw RawObject) (Record, error) {
	r := fields{raw: raw}
	rec := NodeRecord{
		ID:          raw.ID,
		Serial:      r.u32(KeyObjectSerial),
		Nick:        r.str(KeyNodeNick),
		Name:        r.str(KeyNodeName),
		Description: r.str(KeyNodeDescription),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

func translatePort(raw RawObject) (Record, error) {
	r := fields{raw: raw}
	rec := PortRecord{
		ID:           raw.ID,
		Serial:       r.u32(KeyObjectSerial),
		NodeID:       r.u32(KeyNodeID),
		SecondaryID:  r.u32(KeyPortID),
		FormatDSP:    r.str(KeyFormatDSP),
		AudioChannel: r.str(KeyAudioChannel),
		Name:         r.str(KeyPortName),
		Direction:    r.str(KeyPortDirection),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

func translateLink(raw RawObject) (Record, error) {
	r := fields{raw: raw}
	rec := LinkRecord{
		ID:           raw.ID,
		Serial:       r.u32(KeyObjectSerial),
		InputPortID:  r.u32(KeyLinkInputPort),
		OutputPortID: r.u32(KeyLinkOutputPort),
		InputNodeID:  r.u32(KeyLinkInputNode),
		OutputNodeID: r.u32(KeyLinkOutputNode),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// fields performs checked lookups and keeps the first failure.
type fields struct {
	raw RawObject
	err error
}

func (f *fields) u32(key string) uint32 {
	if f.err != nil {
		return 0
	}
	v, ok := f.raw.Props.Lookup(key)
	if !ok {
		f.err = &FieldError{ObjectID: f.raw.ID, Type: f.raw.Type, Field: key, Reason: ErrMissingField}
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		f.err = &FieldError{ObjectID: f.raw.ID, Type: f.raw.Type, Field: key, Value: v, Reason: ErrInvalidField}
		return 0
	}
	return uint32(n)
}

func (f *fields) str(key string) *string {
	v, ok := f.raw.Props.Lookup(key)
	if !ok {
		return nil
	}
	return &v
}
