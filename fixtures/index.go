package fixtures

import (
	"context"

	"github.com/bakerykit/bakery/persistence"
)

// GuardStub is a test implementation of the index.Guard interface.
//
// The zero value owns every instance and adds no fencing operations.
type GuardStub struct {
	OwnsFunc  func(string) bool
	FenceFunc func(context.Context, string) ([]persistence.Operation, error)
}

// Owns returns true if this node currently owns the instance.
func (g *GuardStub) Owns(id string) bool {
	if g.OwnsFunc != nil {
		return g.OwnsFunc(id)
	}

	return true
}

// Fence returns the operations that must be added to each batch that modifies
// the instance.
func (g *GuardStub) Fence(ctx context.Context, id string) ([]persistence.Operation, error) {
	if g.FenceFunc != nil {
		return g.FenceFunc(ctx, id)
	}

	return nil, nil
}
