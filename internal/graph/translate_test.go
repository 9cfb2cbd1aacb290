package graph

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strp(s string) *string { return &s }

func TestTranslateNode(t *testing.T) {
	rec, err := Translate(RawObject{
		ID:   31,
		Type: TypeNode,
		Props: Properties{
			KeyObjectSerial:    "118",
			KeyNodeName:        "alsa_output.pci-0000_00_1f.3.analog-stereo",
			KeyNodeDescription: "Built-in Audio Analog Stereo",
		},
	})
	require.NoError(t, err)
	require.Equal(t, NodeRecord{
		ID:          31,
		Serial:      118,
		Name:        strp("alsa_output.pci-0000_00_1f.3.analog-stereo"),
		Description: strp("Built-in Audio Analog Stereo"),
	}, rec)
	require.Equal(t, TagNode, rec.TypeTag())
}

func TestTranslatePortKeepsBothIDs(t *testing.T) {
	rec, err := Translate(RawObject{
		ID:   52,
		Type: TypePort,
		Props: Properties{
			KeyObjectSerial:  "200",
			KeyNodeID:        "31",
			KeyPortID:        "1",
			KeyPortDirection: "out",
			KeyAudioChannel:  "FR",
		},
	})
	require.NoError(t, err)
	port, ok := rec.(PortRecord)
	require.True(t, ok, "expected PortRecord, got %T", rec)
	require.Equal(t, uint32(52), port.ID)
	require.Equal(t, uint32(1), port.SecondaryID)
	require.Equal(t, uint32(31), port.NodeID)
	require.Equal(t, "FR", *port.AudioChannel)
	require.Equal(t, "out", *port.Direction)
	require.Nil(t, port.FormatDSP)
	require.Nil(t, port.Name)
}

func TestTranslateLinkUsesOutputPortKey(t *testing.T) {
	rec, err := Translate(RawObject{
		ID:   80,
		Type: TypeLink,
		Props: Properties{
			KeyObjectSerial:   "301",
			KeyLinkInputPort:  "60",
			KeyLinkOutputPort: "52",
			KeyLinkInputNode:  "44",
			KeyLinkOutputNode: "31",
		},
	})
	require.NoError(t, err)
	require.Equal(t, LinkRecord{
		ID:           80,
		Serial:       301,
		InputPortID:  60,
		OutputPortID: 52,
		InputNodeID:  44,
		OutputNodeID: 31,
	}, rec)
}

func TestTranslateLinkMissingInputNode(t *testing.T) {
	_, err := Translate(RawObject{
		ID:   81,
		Type: TypeLink,
		Props: Properties{
			KeyObjectSerial:   "302",
			KeyLinkInputPort:  "60",
			KeyLinkOutputPort: "52",
			KeyLinkOutputNode: "31",
		},
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMissingField)

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	require.Equal(t, uint32(81), fieldErr.ObjectID)
	require.Equal(t, KeyLinkInputNode, fieldErr.Field)
	require.Contains(t, err.Error(), KeyLinkInputNode)
}

func TestTranslateRejectsUnparsableNumbers(t *testing.T) {
	cases := map[string]string{
		"negative": "-1",
		"overflow": "4294967296",
		"text":     "abc",
		"empty":    "",
		"float":    "1.5",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Translate(RawObject{
				ID:    9,
				Type:  TypeNode,
				Props: Properties{KeyObjectSerial: value},
			})
			require.ErrorIs(t, err, ErrInvalidField)
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			require.Equal(t, KeyObjectSerial, fieldErr.Field)
			require.Equal(t, value, fieldErr.Value)
		})
	}
}

func TestTranslateOtherIsUnsupported(t *testing.T) {
	_, err := Translate(RawObject{ID: 3, Type: TypeOther, Props: Properties{KeyObjectSerial: "3"}})
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.NotErrorIs(t, err, ErrMissingField)
}

func TestTranslateNilProperties(t *testing.T) {
	_, err := Translate(RawObject{ID: 4, Type: TypePort})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestParseObjectType(t *testing.T) {
	require.Equal(t, TypeNode, ParseObjectType("PipeWire:Interface:Node"))
	require.Equal(t, TypePort, ParseObjectType("port"))
	require.Equal(t, TypeLink, ParseObjectType(" PipeWire:Interface:Link "))
	require.Equal(t, TypeOther, ParseObjectType("PipeWire:Interface:Client"))
	require.Equal(t, TypeOther, ParseObjectType(""))
}

func TestPropertyTranslationTotality(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		id := rapid.Uint32().Draw(rt, "id")
		nums := make([]uint32, 5)
		for i := range nums {
			nums[i] = rapid.Uint32().Draw(rt, "num")
		}
		u := func(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			rec, err := Translate(RawObject{ID: id, Type: TypeNode, Props: Properties{KeyObjectSerial: u(nums[0])}})
			require.NoError(rt, err)
			require.Equal(rt, NodeRecord{ID: id, Serial: nums[0]}, rec)
		case 1:
			rec, err := Translate(RawObject{ID: id, Type: TypePort, Props: Properties{
				KeyObjectSerial: u(nums[0]),
				KeyNodeID:       u(nums[1]),
				KeyPortID:       u(nums[2]),
			}})
			require.NoError(rt, err)
			require.Equal(rt, PortRecord{ID: id, Serial: nums[0], NodeID: nums[1], SecondaryID: nums[2]}, rec)
		default:
			rec, err := Translate(RawObject{ID: id, Type: TypeLink, Props: Properties{
				KeyObjectSerial:   u(nums[0]),
				KeyLinkInputPort:  u(nums[1]),
				KeyLinkOutputPort: u(nums[2]),
				KeyLinkInputNode:  u(nums[3]),
				KeyLinkOutputNode: u(nums[4]),
			}})
			require.NoError(rt, err)
			require.Equal(rt, LinkRecord{
				ID:           id,
				Serial:       nums[0],
				InputPortID:  nums[1],
				OutputPortID: nums[2],
				InputNodeID:  nums[3],
				OutputNodeID: nums[4],
			}, rec)
		}
	})
}

func TestPropertyMissingRequiredFieldFails(t *testing.T) {
	required := []string{KeyObjectSerial, KeyLinkInputPort, KeyLinkOutputPort, KeyLinkInputNode, KeyLinkOutputNode}
	rapid.Check(t, func(rt *rapid.T) {
		drop := rapid.SampledFrom(required).Draw(rt, "drop")
		props := Properties{}
		for _, key := range required {
			if key != drop {
				props[key] = strconv.FormatUint(uint64(rapid.Uint32().Draw(rt, key)), 10)
			}
		}
		rec, err := Translate(RawObject{ID: 1, Type: TypeLink, Props: props})
		require.Nil(rt, rec)
		var fieldErr *FieldError
		require.ErrorAs(rt, err, &fieldErr)
		require.Equal(rt, drop, fieldErr.Field)
	})
}

func TestPropertyOptionalFieldIndependence(t *testing.T) {
	optional := []string{KeyFormatDSP, KeyAudioChannel, KeyPortName, KeyPortDirection}
	rapid.Check(t, func(rt *rapid.T) {
		props := Properties{KeyObjectSerial: "7", KeyNodeID: "2", KeyPortID: "0"}
		present := make(map[string]string)
		for _, key := range optional {
			if rapid.Bool().Draw(rt, "has "+key) {
				v := rapid.String().Draw(rt, key)
				props[key] = v
				present[key] = v
			}
		}
		rec, err := Translate(RawObject{ID: 5, Type: TypePort, Props: props})
		require.NoError(rt, err)
		port := rec.(PortRecord)

		got := map[string]*string{
			KeyFormatDSP:     port.FormatDSP,
			KeyAudioChannel:  port.AudioChannel,
			KeyPortName:      port.Name,
			KeyPortDirection: port.Direction,
		}
		for _, key := range optional {
			want, ok := present[key]
			if !ok {
				require.Nil(rt, got[key], key)
				continue
			}
			require.NotNil(rt, got[key], key)
			require.Equal(rt, want, *got[key], key)
		}
		require.Equal(rt, uint32(7), port.Serial)
		require.Equal(rt, uint32(2), port.NodeID)
		require.Equal(rt, uint32(0), port.SecondaryID)
	})
}
