package memory

import (
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/marshalkit"
)

func cloneEvent(ev persistence.Event) persistence.Event {
	ev.Packet = clonePacket(ev.Packet)
	return ev
}

func clonePacket(p marshalkit.Packet) marshalkit.Packet {
	if p.Data != nil {
		p.Data = append([]byte(nil), p.Data...)
	}

	return p
}
