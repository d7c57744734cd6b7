package persistence

import (
	"context"
	"fmt"
	"strings"
)

// Operation is a persistence operation that can be performed as part of an
// atomic batch.
type Operation interface {
	// AcceptVisitor calls the appropriate method on v for this operation type.
	AcceptVisitor(ctx context.Context, v OperationVisitor) error

	// entityKey returns an identifier for the entity that the operation
	// targets.
	entityKey() entityKey
}

// OperationVisitor visits persistence operations.
type OperationVisitor interface {
	VisitSaveInstanceMetadata(context.Context, SaveInstanceMetadata) error
	VisitAppendEvent(context.Context, AppendEvent) error
	VisitSaveBlueprint(context.Context, SaveBlueprint) error
	VisitSaveShardLease(context.Context, SaveShardLease) error
	VisitCheckShardLease(context.Context, CheckShardLease) error
}

// entityKey identifies the entity affected by an operation.
type entityKey struct {
	kind string
	id   string
	sub  string
}

func (k entityKey) String() string {
	return strings.Join(
		[]string{k.kind, k.id, k.sub},
		":",
	)
}

func shardKey(shard uint32) string {
	return fmt.Sprintf("%d", shard)
}
