package persistence

import (
	"context"
	"time"
)

// ShardLease is a time-bounded claim of ownership over a shard of the
// instance ID space.
type ShardLease struct {
	// Shard is the shard number.
	Shard uint32

	// NodeID identifies the incarnation of the cluster member that holds the
	// lease.
	NodeID string

	// Address is the network address of the holder.
	Address string

	// Token is the fencing token, regenerated each time the lease changes
	// hands. An empty token means the lease is not held.
	Token string

	// ExpiresAt is the time at which the lease lapses unless renewed.
	ExpiresAt time.Time

	// Revision is the lease's current version, used to enforce optimistic
	// concurrency control.
	Revision uint64
}

// IsHeldAt returns true if the lease is held by some node at time t.
func (l ShardLease) IsHeldAt(t time.Time) bool {
	return l.Token != "" && t.Before(l.ExpiresAt)
}

// LeaseRepository is an interface for reading shard leases.
type LeaseRepository interface {
	// LoadShardLease loads the lease for the given shard.
	//
	// If the lease has never been saved, it returns a lease with a zero
	// revision and an empty token.
	LoadShardLease(ctx context.Context, shard uint32) (ShardLease, error)
}

// SaveShardLease is an Operation that acquires, renews or releases a shard
// lease.
type SaveShardLease struct {
	// Lease is the lease to persist.
	//
	// Lease.Revision must be the revision of the lease as currently persisted,
	// otherwise an optimistic concurrency conflict occurs and the entire batch
	// of operations is rejected.
	Lease ShardLease
}

// AcceptVisitor calls v.VisitSaveShardLease().
func (op SaveShardLease) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveShardLease(ctx, op)
}

func (op SaveShardLease) entityKey() entityKey {
	return entityKey{kind: "lease", id: shardKey(op.Lease.Shard)}
}

// CheckShardLease is an Operation that asserts a shard lease is still held
// under a specific fencing token.
//
// It makes no changes. If the persisted token differs, an optimistic
// concurrency conflict occurs and the entire batch of operations is rejected.
// Adding it to a batch ensures that a node which has lost a shard can not
// write to the instances within it.
type CheckShardLease struct {
	Shard uint32
	Token string
}

// AcceptVisitor calls v.VisitCheckShardLease().
func (op CheckShardLease) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitCheckShardLease(ctx, op)
}

func (op CheckShardLease) entityKey() entityKey {
	return entityKey{kind: "lease-check", id: shardKey(op.Shard)}
}
