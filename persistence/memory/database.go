package memory

import (
	"sync/atomic"

	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/cosyne"
)

// database encapsulates a single journal's data.
type database struct {
	mutex cosyne.Mutex
	open  atomic.Bool

	instances  map[string]persistence.InstanceMetadata
	events     map[string][]persistence.Event
	blueprints map[string]persistence.BlueprintRecord
	leases     map[uint32]persistence.ShardLease

	// feed is the ordered list of instance IDs, in the order each instance's
	// first event was appended.
	feed []string

	// ready is closed when new IDs are added to the feed. It is nil if nobody
	// is waiting.
	ready chan struct{}
}

// TryOpen attempts to open the database. If the database is already open it
// returns false.
func (db *database) TryOpen() bool {
	return db.open.CompareAndSwap(false, true)
}

// Close closes an open database, allowing it to be opened again.
func (db *database) Close() {
	db.open.Store(false)
}

// notify wakes any cursors that are waiting for new feed entries. db.mutex
// must be held.
func (db *database) notify() {
	if db.ready != nil {
		close(db.ready)
		db.ready = nil
	}
}

// wait returns a channel that is closed when new feed entries are added.
// db.mutex must be held.
func (db *database) wait() <-chan struct{} {
	if db.ready == nil {
		db.ready = make(chan struct{})
	}

	return db.ready
}
