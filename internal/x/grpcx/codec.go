package grpcx

import (
	"github.com/fxamacker/cbor/v2"
)

// Codec is a gRPC codec that encodes messages as CBOR.
//
// Message types are plain Go structs, which allows services to be described
// with hand-written grpc.ServiceDesc values instead of generated code.
type Codec struct{}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Name returns the content-subtype used on the wire.
func (Codec) Name() string {
	return "cbor"
}

// Marshal encodes v as CBOR.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
