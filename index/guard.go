package index

import (
	"context"

	"github.com/bakerykit/bakery/persistence"
)

// Guard restricts which instances a process index may modify.
//
// It is used in cluster mode to ensure that only the owner of an instance's
// shard writes to the instance.
type Guard interface {
	// Owns returns true if this node currently owns the instance.
	Owns(instanceID string) bool

	// Fence returns the operations that must be added to each batch that
	// modifies the instance.
	//
	// The operations cause the batch to fail if ownership is lost before it
	// is committed. It returns an error if this node does not own the
	// instance.
	Fence(ctx context.Context, instanceID string) ([]persistence.Operation, error)
}
