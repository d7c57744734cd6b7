package persistence

import (
	"context"
	"time"
)

// InstanceMetadata contains the metadata about a process instance.
type InstanceMetadata struct {
	// InstanceID is the process instance ID.
	InstanceID string

	// BlueprintID is the ID of the blueprint that the instance is bound to.
	BlueprintID string

	// CreatedAt is the time at which the instance was created.
	CreatedAt time.Time

	// IsDeleted is true if the instance has been tombstoned.
	IsDeleted bool

	// Revision is the instance's current version, used to enforce optimistic
	// concurrency control.
	Revision uint64
}

// InstanceRepository is an interface for reading process instance metadata.
type InstanceRepository interface {
	// LoadInstanceMetadata loads the metadata for the instance with the given
	// ID.
	//
	// ok is false if the instance has never been created.
	LoadInstanceMetadata(
		ctx context.Context,
		id string,
	) (md InstanceMetadata, ok bool, err error)
}

// SaveInstanceMetadata is an Operation that creates or updates the metadata for
// a process instance.
type SaveInstanceMetadata struct {
	// Metadata is the metadata to persist.
	//
	// Metadata.Revision must be the revision of the instance as currently
	// persisted, otherwise an optimistic concurrency conflict occurs and the
	// entire batch of operations is rejected. The revision of a new instance
	// is 0.
	Metadata InstanceMetadata
}

// AcceptVisitor calls v.VisitSaveInstanceMetadata().
func (op SaveInstanceMetadata) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveInstanceMetadata(ctx, op)
}

func (op SaveInstanceMetadata) entityKey() entityKey {
	return entityKey{kind: "instance", id: op.Metadata.InstanceID}
}
