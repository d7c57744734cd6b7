// Package index is the process index, which creates, locates, supervises and
// tears down process instances.
package index

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/process"
)

// Index is the set of operations provided by every process index.
type Index interface {
	// GetOrCreate returns a handle to the instance with the given ID.
	//
	// If the instance does not exist it is created and bound to the blueprint
	// with the given ID. Concurrent callers receive the same handle.
	GetOrCreate(ctx context.Context, instanceID, blueprintID string) (Handle, error)

	// Delete tombstones the instance with the given ID.
	//
	// It waits for any in-flight operations on the instance to complete. It
	// is idempotent, but returns an UnknownInstanceError if the instance was
	// never created.
	Delete(ctx context.Context, instanceID string) error

	// ListAll returns the metadata of every instance that has not been
	// deleted.
	//
	// It fails with a QueryTimeoutError if the query does not complete within
	// the given timeout. It never returns a partial result.
	ListAll(ctx context.Context, timeout time.Duration) ([]Metadata, error)
}

// Handle is a reference to a live process instance.
type Handle interface {
	// InstanceID returns the ID of the instance.
	InstanceID() string

	// BlueprintID returns the ID of the blueprint the instance is bound to.
	BlueprintID() string

	// Fire fires a sensory event on the instance.
	Fire(ctx context.Context, ev process.SensoryEvent) error

	// Execute executes a named interaction on behalf of the instance and
	// returns the ingredients it produced.
	Execute(ctx context.Context, interaction string) (map[string]string, error)

	// Snapshot returns a point-in-time view of the instance.
	Snapshot(ctx context.Context) (process.Snapshot, error)
}

// Metadata describes an instance known to the index.
type Metadata struct {
	InstanceID  string    `cbor:"1,keyasint" json:"instance_id"`
	BlueprintID string    `cbor:"2,keyasint" json:"blueprint_id"`
	CreatedAt   time.Time `cbor:"3,keyasint" json:"created_at"`
}

// RetentionPolicy controls how long instances are kept in memory and in the
// journal.
type RetentionPolicy struct {
	// CheckInterval is the interval at which idle instances are passivated
	// and expired instances are deleted. If it is non-positive,
	// DefaultCheckInterval is used.
	CheckInterval time.Duration

	// IdleTimeout is the period after which an unused instance is passivated.
	// If it is zero, instances are never passivated.
	IdleTimeout time.Duration
}

// DefaultCheckInterval is the default interval at which the retention policy
// is enforced.
const DefaultCheckInterval = 1 * time.Minute

func (p RetentionPolicy) checkInterval() time.Duration {
	if p.CheckInterval > 0 {
		return p.CheckInterval
	}

	return DefaultCheckInterval
}
