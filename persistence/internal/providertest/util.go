package providertest

import (
	"context"
	"fmt"
	"time"

	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/marshalkit"
	"github.com/onsi/gomega"
)

// persist persists a batch of operations and asserts that there is no
// failure.
func persist(
	ctx context.Context,
	ds persistence.DataStore,
	batch ...persistence.Operation,
) {
	err := ds.Persist(ctx, batch)
	gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())
}

// loadMetadata loads instance metadata and asserts that it exists.
func loadMetadata(
	ctx context.Context,
	ds persistence.DataStore,
	id string,
) persistence.InstanceMetadata {
	md, ok, err := ds.LoadInstanceMetadata(ctx, id)
	gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())
	gomega.ExpectWithOffset(1, ok).To(gomega.BeTrue(), "instance metadata does not exist")
	return md
}

// loadEvents loads all of the events for an instance.
func loadEvents(
	ctx context.Context,
	ds persistence.DataStore,
	id string,
) []persistence.Event {
	r, err := ds.LoadEvents(ctx, id)
	gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())

	events, err := persistence.LoadAllEvents(ctx, r)
	gomega.ExpectWithOffset(1, err).ShouldNot(gomega.HaveOccurred())

	return events
}

// newEvent returns an event with a distinct payload.
func newEvent(id string, seq uint64) persistence.Event {
	return persistence.Event{
		InstanceID: id,
		Sequence:   seq,
		RecordedAt: baseTime.Add(time.Duration(seq) * time.Second),
		Packet: marshalkit.Packet{
			MediaType: "application/json; type=Event",
			Data:      []byte(fmt.Sprintf(`{"seq":%d}`, seq)),
		},
	}
}

// expectEventsToEqual asserts that two event slices are equivalent. Times are
// compared with Equal() as providers may not preserve location data.
func expectEventsToEqual(check, expect []persistence.Event) {
	gomega.ExpectWithOffset(1, check).To(gomega.HaveLen(len(expect)))

	for i, ev := range check {
		gomega.ExpectWithOffset(1, ev.RecordedAt.Equal(expect[i].RecordedAt)).To(
			gomega.BeTrue(),
			"event %d has unexpected recorded-at time %s", i, ev.RecordedAt,
		)

		ev.RecordedAt = expect[i].RecordedAt
		gomega.ExpectWithOffset(1, ev).To(gomega.Equal(expect[i]))
	}
}

var baseTime = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
