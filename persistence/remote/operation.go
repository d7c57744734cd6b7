package remote

import (
	"context"
	"errors"

	"github.com/bakerykit/bakery/persistence"
)

// operation is the wire representation of a persistence.Operation.
//
// Exactly one of the fields is populated.
type operation struct {
	SaveInstanceMetadata *persistence.SaveInstanceMetadata `cbor:"1,keyasint,omitempty"`
	AppendEvent          *persistence.AppendEvent          `cbor:"2,keyasint,omitempty"`
	SaveBlueprint        *persistence.SaveBlueprint        `cbor:"3,keyasint,omitempty"`
	SaveShardLease       *persistence.SaveShardLease       `cbor:"4,keyasint,omitempty"`
	CheckShardLease      *persistence.CheckShardLease      `cbor:"5,keyasint,omitempty"`
}

// errUnknownOperation is returned when an operation received over the wire
// has none of its fields populated.
var errUnknownOperation = errors.New("unrecognized operation")

// marshalBatch returns the wire representation of a batch.
func marshalBatch(ctx context.Context, b persistence.Batch) ([]operation, error) {
	m := &marshaler{
		ops: make([]operation, 0, len(b)),
	}

	if err := b.AcceptVisitor(ctx, m); err != nil {
		return nil, err
	}

	return m.ops, nil
}

// unmarshalBatch returns the batch described by its wire representation.
func unmarshalBatch(ops []operation) (persistence.Batch, error) {
	b := make(persistence.Batch, 0, len(ops))

	for _, op := range ops {
		switch {
		case op.SaveInstanceMetadata != nil:
			b = append(b, *op.SaveInstanceMetadata)
		case op.AppendEvent != nil:
			b = append(b, *op.AppendEvent)
		case op.SaveBlueprint != nil:
			b = append(b, *op.SaveBlueprint)
		case op.SaveShardLease != nil:
			b = append(b, *op.SaveShardLease)
		case op.CheckShardLease != nil:
			b = append(b, *op.CheckShardLease)
		default:
			return nil, errUnknownOperation
		}
	}

	return b, nil
}

// marshaler is an implementation of persistence.OperationVisitor that builds
// the wire representation of a batch.
type marshaler struct {
	ops []operation
}

func (m *marshaler) VisitSaveInstanceMetadata(_ context.Context, op persistence.SaveInstanceMetadata) error {
	m.ops = append(m.ops, operation{SaveInstanceMetadata: &op})
	return nil
}

func (m *marshaler) VisitAppendEvent(_ context.Context, op persistence.AppendEvent) error {
	m.ops = append(m.ops, operation{AppendEvent: &op})
	return nil
}

func (m *marshaler) VisitSaveBlueprint(_ context.Context, op persistence.SaveBlueprint) error {
	m.ops = append(m.ops, operation{SaveBlueprint: &op})
	return nil
}

func (m *marshaler) VisitSaveShardLease(_ context.Context, op persistence.SaveShardLease) error {
	m.ops = append(m.ops, operation{SaveShardLease: &op})
	return nil
}

func (m *marshaler) VisitCheckShardLease(_ context.Context, op persistence.CheckShardLease) error {
	m.ops = append(m.ops, operation{CheckShardLease: &op})
	return nil
}
