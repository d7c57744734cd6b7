package boltdb

import (
	"context"

	"github.com/bakerykit/bakery/internal/x/bboltx"
	"github.com/bakerykit/bakery/persistence"
	"go.etcd.io/bbolt"
)

// validator is an implementation of persistence.OperationVisitor that returns
// an error if any operation in a batch can not be applied to the database.
type validator struct {
	root *bbolt.Bucket

	// appended is the number of events appended to each instance by earlier
	// operations in the same batch.
	appended map[string]uint64
}

// committer is an implementation of persistence.OperationVisitor that applies
// operations to the database.
//
// It is expected that the operations have already been validated.
type committer struct {
	root *bbolt.Bucket
	tx   *bbolt.Tx
	ds   *dataStore
}

// VisitSaveInstanceMetadata returns an error if a "SaveInstanceMetadata"
// operation can not be applied to the database.
func (v *validator) VisitSaveInstanceMetadata(
	_ context.Context,
	op persistence.SaveInstanceMetadata,
) error {
	var rev uint64

	id := op.Metadata.InstanceID
	if data := bboltx.Get(v.root, []byte(id), instancesBucketKey); data != nil {
		rev = unmarshalInstance(id, data).Revision
	}

	if op.Metadata.Revision == rev {
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
	md := op.Metadata
	md.Revision++

	bboltx.Put(
		bboltx.CreateBucketIfNotExists(c.root, instancesBucketKey),
		[]byte(md.InstanceID),
		marshalInstance(md),
	)

	return nil
}

// VisitAppendEvent returns an error if an "AppendEvent" operation can not be
// applied to the database.
func (v *validator) VisitAppendEvent(
	_ context.Context,
	op persistence.AppendEvent,
) error {
	id := op.Event.InstanceID
	next := v.appended[id]

	if b := bboltx.Bucket(v.root, eventsBucketKey, []byte(id)); b != nil {
		if k, _ := b.Cursor().Last(); k != nil {
			next += unmarshalUint64(k) + 1
		}
	}

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
	id := []byte(op.Event.InstanceID)

	bboltx.Put(
		bboltx.CreateBucketIfNotExists(c.root, eventsBucketKey, id),
		marshalUint64(op.Event.Sequence),
		marshalEvent(op.Event),
	)

	if op.Event.Sequence == 0 {
		feed := bboltx.CreateBucketIfNotExists(c.root, feedBucketKey)

		n, err := feed.NextSequence()
		bboltx.Must(err)

		// NextSequence() starts at 1, but feed offsets are zero-based.
		bboltx.Put(feed, marshalUint64(n-1), id)
		c.tx.OnCommit(c.ds.notify)
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
	b := bboltx.CreateBucketIfNotExists(c.root, blueprintsBucketKey)
	k := []byte(op.Blueprint.ID)

	if b.Get(k) == nil {
		bboltx.Put(b, k, marshalPacket(op.Blueprint.Packet))
	}

	return nil
}

// VisitSaveShardLease returns an error if a "SaveShardLease" operation can not
// be applied to the database.
func (v *validator) VisitSaveShardLease(
	_ context.Context,
	op persistence.SaveShardLease,
) error {
	l := unmarshalLease(
		op.Lease.Shard,
		bboltx.Get(v.root, marshalUint32(op.Lease.Shard), leasesBucketKey),
	)

	if op.Lease.Revision == l.Revision {
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
	l := op.Lease
	l.Revision++

	bboltx.Put(
		bboltx.CreateBucketIfNotExists(c.root, leasesBucketKey),
		marshalUint32(l.Shard),
		marshalLease(l),
	)

	return nil
}

// VisitCheckShardLease returns an error if the lease is no longer held under
// the token in a "CheckShardLease" operation.
func (v *validator) VisitCheckShardLease(
	_ context.Context,
	op persistence.CheckShardLease,
) error {
	l := unmarshalLease(
		op.Shard,
		bboltx.Get(v.root, marshalUint32(op.Shard), leasesBucketKey),
	)

	if l.Token != "" && l.Token == op.Token {
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
