package encrypted

import (
	"context"

	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/persistence"
)

// encrypter is an implementation of persistence.OperationVisitor that builds a
// copy of a batch with its payloads encrypted.
type encrypter struct {
	policy encryption.Policy
	batch  persistence.Batch
}

func (v *encrypter) VisitSaveInstanceMetadata(
	_ context.Context,
	op persistence.SaveInstanceMetadata,
) error {
	v.batch = append(v.batch, op)
	return nil
}

func (v *encrypter) VisitAppendEvent(
	_ context.Context,
	op persistence.AppendEvent,
) error {
	data, err := v.policy.Encrypt(op.Event.Packet.Data)
	if err != nil {
		return err
	}

	op.Event.Packet.Data = data
	v.batch = append(v.batch, op)

	return nil
}

func (v *encrypter) VisitSaveBlueprint(
	_ context.Context,
	op persistence.SaveBlueprint,
) error {
	data, err := v.policy.Encrypt(op.Blueprint.Packet.Data)
	if err != nil {
		return err
	}

	op.Blueprint.Packet.Data = data
	v.batch = append(v.batch, op)

	return nil
}

func (v *encrypter) VisitSaveShardLease(
	_ context.Context,
	op persistence.SaveShardLease,
) error {
	v.batch = append(v.batch, op)
	return nil
}

func (v *encrypter) VisitCheckShardLease(
	_ context.Context,
	op persistence.CheckShardLease,
) error {
	v.batch = append(v.batch, op)
	return nil
}
