package memory

import (
	"context"

	"github.com/bakerykit/bakery/persistence"
)

// validator is an implementation of persistence.OperationVisitor that returns
// an error if any operation in a batch can not be applied to the database.
type validator struct {
	db *database

	// appended is the number of events appended to each instance by earlier
	// operations in the same batch.
	appended map[string]uint64
}

// committer is an implementation of persistence.OperationVisitor that applies
// operations to the database.
//
// It is expected that the operations have already been validated.
type committer struct {
	db *database
}

// VisitSaveInstanceMetadata returns an error if a "SaveInstanceMetadata"
// operation can not be applied to the database.
func (v *validator) VisitSaveInstanceMetadata(
	_ context.Context,
	op persistence.SaveInstanceMetadata,
) error {
	if op.Metadata.Revision == v.db.instances[op.Metadata.InstanceID].Revision {
		return nil
	}

	return persistence.ConflictError{Cause: op}
}

// VisitSaveInstanceMetadata applies the changes in a "SaveInstanceMetadata"
// operation to the database.
func (c *committer) VisitSaveInstanceMetadata(
	_ context.Context,
	op persistence.SaveInstanceMetadata,
) error {
	if c.db.instances == nil {
		c.db.instances = map[string]persistence.InstanceMetadata{}
	}

	md := op.Metadata
	md.Revision++
	c.db.instances[md.InstanceID] = md

	return nil
}

// VisitAppendEvent returns an error if an "AppendEvent" operation can not be
// applied to the database.
func (v *validator) VisitAppendEvent(
	_ context.Context,
	op persistence.AppendEvent,
) error {
	id := op.Event.InstanceID
	next := uint64(len(v.db.events[id])) + v.appended[id]

	if op.Event.Sequence == next {
		if v.appended == nil {
			v.appended = map[string]uint64{}
		}
		v.appended[id]++

		return nil
	}

	return persistence.ConflictError{Cause: op}
}

// VisitAppendEvent applies the changes in an "AppendEvent" operation to the
// database.
func (c *committer) VisitAppendEvent(
	_ context.Context,
	op persistence.AppendEvent,
) error {
	if c.db.events == nil {
		c.db.events = map[string][]persistence.Event{}
	}

	id := op.Event.InstanceID
	c.db.events[id] = append(c.db.events[id], cloneEvent(op.Event))

	if op.Event.Sequence == 0 {
		c.db.feed = append(c.db.feed, id)
		c.db.notify()
	}

	return nil
}

// VisitSaveBlueprint always succeeds, blueprints are immutable so saving an
// existing blueprint is a no-op.
func (v *validator) VisitSaveBlueprint(
	context.Context,
	persistence.SaveBlueprint,
) error {
	return nil
}

// VisitSaveBlueprint applies the changes in a "SaveBlueprint" operation to the
// database.
func (c *committer) VisitSaveBlueprint(
	_ context.Context,
	op persistence.SaveBlueprint,
) error {
	if c.db.blueprints == nil {
		c.db.blueprints = map[string]persistence.BlueprintRecord{}
	}

	if _, ok := c.db.blueprints[op.Blueprint.ID]; !ok {
		r := op.Blueprint
		r.Packet = clonePacket(r.Packet)
		c.db.blueprints[r.ID] = r
	}

	return nil
}

// VisitSaveShardLease returns an error if a "SaveShardLease" operation can not
// be applied to the database.
func (v *validator) VisitSaveShardLease(
	_ context.Context,
	op persistence.SaveShardLease,
) error {
	if op.Lease.Revision == v.db.leases[op.Lease.Shard].Revision {
		return nil
	}

	return persistence.ConflictError{Cause: op}
}

// VisitSaveShardLease applies the changes in a "SaveShardLease" operation to
// the database.
func (c *committer) VisitSaveShardLease(
	_ context.Context,
	op persistence.SaveShardLease,
) error {
	if c.db.leases == nil {
		c.db.leases = map[uint32]persistence.ShardLease{}
	}

	l := op.Lease
	l.Revision++
	c.db.leases[l.Shard] = l

	return nil
}

// VisitCheckShardLease returns an error if the lease is no longer held under
// the token in a "CheckShardLease" operation.
func (v *validator) VisitCheckShardLease(
	_ context.Context,
	op persistence.CheckShardLease,
) error {
	if l, ok := v.db.leases[op.Shard]; ok && l.Token != "" && l.Token == op.Token {
		return nil
	}

	return persistence.ConflictError{Cause: op}
}

// VisitCheckShardLease does nothing.
func (c *committer) VisitCheckShardLease(
	context.Context,
	persistence.CheckShardLease,
) error {
	return nil
}
