package boltdb

import (
	"encoding/binary"
	"time"

	"github.com/bakerykit/bakery/internal/x/bboltx"
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/marshalkit"
	"github.com/fxamacker/cbor/v2"
)

var (
	instancesBucketKey  = []byte("instances")
	eventsBucketKey     = []byte("events")
	feedBucketKey       = []byte("feed")
	blueprintsBucketKey = []byte("blueprints")
	leasesBucketKey     = []byte("leases")
)

// instanceRecord is the stored form of persistence.InstanceMetadata.
type instanceRecord struct {
	BlueprintID string `cbor:"1,keyasint"`
	CreatedAt   int64  `cbor:"2,keyasint"`
	IsDeleted   bool   `cbor:"3,keyasint,omitempty"`
	Revision    uint64 `cbor:"4,keyasint"`
}

// eventRecord is the stored form of persistence.Event.
type eventRecord struct {
	RecordedAt int64  `cbor:"1,keyasint"`
	MediaType  string `cbor:"2,keyasint"`
	Data       []byte `cbor:"3,keyasint"`
}

// leaseRecord is the stored form of persistence.ShardLease.
type leaseRecord struct {
	NodeID    string `cbor:"1,keyasint"`
	Address   string `cbor:"2,keyasint"`
	Token     string `cbor:"3,keyasint,omitempty"`
	ExpiresAt int64  `cbor:"4,keyasint"`
	Revision  uint64 `cbor:"5,keyasint"`
}

// packetRecord is the stored form of a marshalkit.Packet.
type packetRecord struct {
	MediaType string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

func marshal(v interface{}) []byte {
	data, err := cbor.Marshal(v)
	bboltx.Must(err)
	return data
}

func unmarshal(data []byte, v interface{}) {
	bboltx.Must(cbor.Unmarshal(data, v))
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

func marshalInstance(md persistence.InstanceMetadata) []byte {
	return marshal(instanceRecord{
		BlueprintID: md.BlueprintID,
		CreatedAt:   toUnixNano(md.CreatedAt),
		IsDeleted:   md.IsDeleted,
		Revision:    md.Revision,
	})
}

func unmarshalInstance(id string, data []byte) persistence.InstanceMetadata {
	var r instanceRecord
	unmarshal(data, &r)

	return persistence.InstanceMetadata{
		InstanceID:  id,
		BlueprintID: r.BlueprintID,
		CreatedAt:   fromUnixNano(r.CreatedAt),
		IsDeleted:   r.IsDeleted,
		Revision:    r.Revision,
	}
}

func marshalEvent(ev persistence.Event) []byte {
	return marshal(eventRecord{
		RecordedAt: toUnixNano(ev.RecordedAt),
		MediaType:  ev.Packet.MediaType,
		Data:       ev.Packet.Data,
	})
}

func unmarshalEvent(id string, seq uint64, data []byte) persistence.Event {
	var r eventRecord
	unmarshal(data, &r)

	return persistence.Event{
		InstanceID: id,
		Sequence:   seq,
		RecordedAt: fromUnixNano(r.RecordedAt),
		Packet: marshalkit.Packet{
			MediaType: r.MediaType,
			Data:      r.Data,
		},
	}
}

func marshalLease(l persistence.ShardLease) []byte {
	return marshal(leaseRecord{
		NodeID:    l.NodeID,
		Address:   l.Address,
		Token:     l.Token,
		ExpiresAt: toUnixNano(l.ExpiresAt),
		Revision:  l.Revision,
	})
}

func unmarshalLease(shard uint32, data []byte) persistence.ShardLease {
	l := persistence.ShardLease{Shard: shard}
	if data == nil {
		return l
	}

	var r leaseRecord
	unmarshal(data, &r)

	l.NodeID = r.NodeID
	l.Address = r.Address
	l.Token = r.Token
	l.ExpiresAt = fromUnixNano(r.ExpiresAt)
	l.Revision = r.Revision

	return l
}

func marshalPacket(p marshalkit.Packet) []byte {
	return marshal(packetRecord{p.MediaType, p.Data})
}

func unmarshalPacket(data []byte) marshalkit.Packet {
	var r packetRecord
	unmarshal(data, &r)
	return marshalkit.Packet{MediaType: r.MediaType, Data: r.Data}
}

func marshalUint64(n uint64) []byte {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], n)
	return data[:]
}

func unmarshalUint64(data []byte) uint64 {
	return binary.BigEndian.Uint64(data)
}

func marshalUint32(n uint32) []byte {
	var data [4]byte
	binary.BigEndian.PutUint32(data[:], n)
	return data[:]
}
