package persistence

import (
	"context"

	"github.com/dogmatiq/marshalkit"
)

// BlueprintRecord is the persisted form of a blueprint.
type BlueprintRecord struct {
	// ID is the content-derived blueprint ID.
	ID string

	// Packet is the binary representation of the blueprint.
	Packet marshalkit.Packet
}

// BlueprintRepository is an interface for reading blueprints.
type BlueprintRepository interface {
	// LoadBlueprint loads the blueprint with the given ID.
	//
	// ok is false if no such blueprint has been saved.
	LoadBlueprint(ctx context.Context, id string) (r BlueprintRecord, ok bool, err error)

	// LoadBlueprints loads every blueprint, ordered by ID.
	LoadBlueprints(ctx context.Context) ([]BlueprintRecord, error)
}

// SaveBlueprint is an Operation that stores a blueprint.
//
// Blueprints are immutable. Saving a blueprint with an ID that already exists
// leaves the existing record untouched.
type SaveBlueprint struct {
	Blueprint BlueprintRecord
}

// AcceptVisitor calls v.VisitSaveBlueprint().
func (op SaveBlueprint) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveBlueprint(ctx, op)
}

func (op SaveBlueprint) entityKey() entityKey {
	return entityKey{kind: "blueprint", id: op.Blueprint.ID}
}
