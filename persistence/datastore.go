package persistence

import (
	"context"
)

// DataStore is an interface used by the process index to read and write the
// journal.
type DataStore interface {
	InstanceRepository
	JournalRepository
	BlueprintRepository
	LeaseRepository

	// Persist commits a batch of operations atomically.
	//
	// If any one of the operations causes an optimistic concurrency conflict
	// the entire batch is aborted and a ConflictError is returned.
	Persist(ctx context.Context, b Batch) error

	// Close closes the data store.
	//
	// Closing a data-store causes any future calls to Persist() to return
	// ErrDataStoreClosed. Blocked cursors are woken and return the same
	// error.
	//
	// The behavior of read operations on a closed data-store is undefined.
	Close() error
}
