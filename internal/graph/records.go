package graph

import "strings"

// ObjectType is the registry interface kind of a global object.
type ObjectType int

const (
	TypeOther ObjectType = iota
	TypeNode
	TypePort
	TypeLink
)

func (t ObjectType) String() string {
	switch t {
	case TypeNode:
		return "node"
	case TypePort:
		return "port"
	case TypeLink:
		return "link"
	default:
		return "other"
	}
}

// ParseObjectType maps a registry interface name onto an ObjectType.
// Both short names ("node") and PipeWire interface names
// ("PipeWire:Interface:Node") are accepted.
func ParseObjectType(raw string) ObjectType {
	name := strings.TrimSpace(raw)
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	switch strings.ToLower(name) {
	case "node":
		return TypeNode
	case "port":
		return TypePort
	case "link":
		return TypeLink
	default:
		return TypeOther
	}
}

// Properties is the untyped string-keyed dictionary attached to a global.
type Properties map[string]string

// Lookup returns the value for key and whether it was present.
func (p Properties) Lookup(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[key]
	return v, ok
}

// RawObject is one registry global as handed to a listener. It is only valid
// for the duration of the callback that received it.
type RawObject struct {
	ID    uint32
	Type  ObjectType
	Props Properties
}

// Type tags used in event names.
const (
	TagNode = "node"
	TagPort = "port"
	TagLink = "link"
	TagID   = "id"
)

// Record is one typed, immutable view of a registry global.
type Record interface {
	ObjectID() uint32
	TypeTag() string
}

type NodeRecord struct {
	ID          uint32  `json:"id"`
	Serial      uint32  `json:"serial"`
	Nick        *string `json:"nick"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r NodeRecord) ObjectID() uint32 { return r.ID }
func (r NodeRecord) TypeTag() string  { return TagNode }

// PortRecord describes one port. SecondaryID is the port's position within
// its node's input or output side and is unrelated to the global ID.
type PortRecord struct {
	ID           uint32  `json:"id"`
	Serial       uint32  `json:"serial"`
	NodeID       uint32  `json:"node_id"`
	SecondaryID  uint32  `json:"secondary_id"`
	FormatDSP    *string `json:"format_dsp"`
	AudioChannel *string `json:"audio_channel"`
	Name         *string `json:"name"`
	Direction    *string `json:"direction"`
}

func (r PortRecord) ObjectID() uint32 { return r.ID }
func (r PortRecord) TypeTag() string  { return TagPort }

type LinkRecord struct {
	ID           uint32 `json:"id"`
	Serial       uint32 `json:"serial"`
	InputPortID  uint32 `json:"input_port_id"`
	OutputPortID uint32 `json:"output_port_id"`
	InputNodeID  uint32 `json:"input_node_id"`
	OutputNodeID uint32 `json:"output_node_id"`
}

func (r LinkRecord) ObjectID() uint32 { return r.ID }
func (r LinkRecord) TypeTag() string  { return TagLink }

// IDRecord carries only the id of a removed global.
type IDRecord struct {
	ID uint32 `json:"id"`
}

func (r IDRecord) ObjectID() uint32 { return r.ID }
func (r IDRecord) TypeTag() string  { return TagID }
