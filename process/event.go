package process

import (
	"fmt"
	"reflect"

	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
)

// InstanceCreated is the first event in every instance's journal.
type InstanceCreated struct {
	InstanceID  string `json:"instance_id"`
	BlueprintID string `json:"blueprint_id"`
}

// EventFired records a sensory event fired on an instance.
type EventFired struct {
	Name        string            `json:"name"`
	Ingredients map[string]string `json:"ingredients,omitempty"`
}

// InteractionExecuted records the successful execution of an interaction.
type InteractionExecuted struct {
	Interaction string            `json:"interaction"`
	Output      map[string]string `json:"output,omitempty"`
}

// DefaultMarshaler is the marshaler used to journal instance events.
var DefaultMarshaler marshalkit.ValueMarshaler

func init() {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(InstanceCreated{}),
			reflect.TypeOf(EventFired{}),
			reflect.TypeOf(InteractionExecuted{}),
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

// UnmarshalEvent unmarshals an instance event from its binary representation.
//
// The result is always one of the event types in this package, as a value
// rather than a pointer.
func UnmarshalEvent(m marshalkit.ValueMarshaler, p marshalkit.Packet) (interface{}, error) {
	v, err := m.Unmarshal(p)
	if err != nil {
		return nil, err
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && !rv.IsNil() {
		v = rv.Elem().Interface()
	}

	switch v.(type) {
	case InstanceCreated, EventFired, InteractionExecuted:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected event type %T", v)
	}
}
