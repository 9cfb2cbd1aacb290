package pwdump

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/danmuck/pwbridge/internal/graph"
)

// dumpObject is one element of a pw-dump batch. Info stays raw so that an
// explicit null (removal) can be told apart from an absent info block.
type dumpObject struct {
	ID   uint32          `json:"id"`
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

type dumpInfo struct {
	Props map[string]json.RawMessage `json:"props"`
}

var jsonNull = []byte("null")

func (o dumpObject) removed() bool {
	return bytes.Equal(bytes.TrimSpace(o.Info), jsonNull)
}

// raw converts a dump object into the registry's string dictionary form.
func (o dumpObject) raw() (graph.RawObject, error) {
	obj := graph.RawObject{
		ID:    o.ID,
		Type:  graph.ParseObjectType(o.Type),
		Props: graph.Properties{},
	}
	if len(o.Info) == 0 {
		return obj, nil
	}
	var info dumpInfo
	if err := json.Unmarshal(o.Info, &info); err != nil {
		return graph.RawObject{}, fmt.Errorf("pwdump: object %d info: %w", o.ID, err)
	}
	for key, value := range info.Props {
		obj.Props[key] = propString(value)
	}
	return obj, nil
}

// propString renders a JSON property value the way the registry dictionary
// holds it: strings unquoted, everything else as its literal text.
func propString(value json.RawMessage) string {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}
