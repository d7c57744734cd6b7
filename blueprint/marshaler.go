package blueprint

import (
	"fmt"
	"reflect"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
)

// DefaultMarshaler is the marshaler used to store blueprints when a registry
// does not specify one.
var DefaultMarshaler marshalkit.ValueMarshaler

func init() {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(Blueprint{}),
		},
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	DefaultMarshaler = m
}

// unmarshal unmarshals a blueprint from its binary representation.
func unmarshal(m marshalkit.ValueMarshaler, p marshalkit.Packet) (Blueprint, error) {
	v, err := m.Unmarshal(p)
	if err != nil {
		return Blueprint{}, err
	}

	switch bp := v.(type) {
	case Blueprint:
		return bp, nil
	case *Blueprint:
		return *bp, nil
	default:
		return Blueprint{}, fmt.Errorf("unexpected blueprint type %T", v)
	}
}
