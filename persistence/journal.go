package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dogmatiq/marshalkit"
)

// ErrCursorClosed is returned by InstanceIDCursor.Next() once the cursor has
// been closed.
var ErrCursorClosed = errors.New("cursor is closed")

// Event is an entry in a process instance's journal.
type Event struct {
	// InstanceID is the ID of the instance that the event belongs to.
	InstanceID string

	// Sequence is the zero-based position of the event within the instance's
	// journal.
	Sequence uint64

	// RecordedAt is the time at which the event was recorded.
	RecordedAt time.Time

	// Packet is the binary representation of the event.
	Packet marshalkit.Packet
}

// JournalRepository is an interface for querying the journal.
type JournalRepository interface {
	// LoadEvents returns the events recorded for the instance with the given
	// ID, in the order they were appended.
	LoadEvents(ctx context.Context, id string) (EventResult, error)

	// LoadInstanceIDs returns the IDs of every instance that has at least one
	// event in the journal, as of the time of the call.
	LoadInstanceIDs(ctx context.Context) ([]string, error)

	// OpenInstanceIDStream returns a cursor that yields instance IDs in the
	// order the instances were first journaled, beginning at the given
	// offset.
	//
	// The stream is live. Once existing IDs are exhausted Next() blocks until
	// a new instance is journaled.
	OpenInstanceIDStream(ctx context.Context, offset uint64) (InstanceIDCursor, error)
}

// EventResult is the result of a query for the events of a single instance.
type EventResult interface {
	// Next returns the next event in the result.
	//
	// It returns false if there are no more events.
	Next(ctx context.Context) (Event, bool, error)

	// Close frees resources associated with the result.
	Close() error
}

// InstanceIDCursor is a cursor over the live feed of instance IDs.
type InstanceIDCursor interface {
	// Next returns the next instance ID and the offset of the following
	// entry.
	//
	// It blocks until an ID is available, ctx is canceled or the cursor is
	// closed.
	Next(ctx context.Context) (id string, next uint64, err error)

	// Close stops the cursor.
	//
	// Any current or future calls to Next() return a non-nil error.
	Close() error
}

// AppendEvent is an Operation that appends an event to an instance's journal.
type AppendEvent struct {
	// Event is the event to append.
	//
	// Event.Sequence must equal the number of events already recorded for the
	// instance, otherwise an optimistic concurrency conflict occurs and the
	// entire batch of operations is rejected. Appending the event with
	// sequence 0 adds the instance to the live instance ID feed.
	Event Event
}

// AcceptVisitor calls v.VisitAppendEvent().
func (op AppendEvent) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitAppendEvent(ctx, op)
}

func (op AppendEvent) entityKey() entityKey {
	return entityKey{
		kind: "event",
		id:   op.Event.InstanceID,
		sub:  fmt.Sprintf("%d", op.Event.Sequence),
	}
}

// LoadAllEvents reads every event from a result and closes it.
func LoadAllEvents(ctx context.Context, r EventResult) (_ []Event, err error) {
	defer func() {
		if cerr := r.Close(); err == nil {
			err = cerr
		}
	}()

	var events []Event

	for {
		ev, ok, err := r.Next(ctx)
		if err != nil {
			return nil, err
		}

		if !ok {
			return events, nil
		}

		events = append(events, ev)
	}
}

// EventSlice is an EventResult over an in-memory slice of events.
type EventSlice struct {
	Events []Event
	index  int
}

// Next returns the next event in the result.
func (r *EventSlice) Next(ctx context.Context) (Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}

	if r.index >= len(r.Events) {
		return Event{}, false, nil
	}

	ev := r.Events[r.index]
	r.index++

	return ev, true, nil
}

// Close is a no-op.
func (r *EventSlice) Close() error {
	return nil
}
