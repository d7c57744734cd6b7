package encrypted

import (
	"context"
	"errors"
	"fmt"

	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/persistence"
)

// DataStore is a persistence.DataStore that encrypts event and blueprint
// payloads before persisting them to the underlying data-store, and decrypts
// them as they are loaded.
type DataStore struct {
	persistence.DataStore

	Policy encryption.Policy
}

// Persist commits a batch of operations atomically.
//
// If the underlying data-store reports a conflict, the cause is mapped back to
// the corresponding (unencrypted) operation in b.
func (ds *DataStore) Persist(ctx context.Context, b persistence.Batch) error {
	b.MustValidate()

	e := &encrypter{
		policy: ds.Policy,
		batch:  make(persistence.Batch, 0, len(b)),
	}

	if err := b.AcceptVisitor(ctx, e); err != nil {
		return err
	}

	err := ds.DataStore.Persist(ctx, e.batch)

	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		if i := e.batch.IndexOf(conflict.Cause); i != -1 {
			return persistence.ConflictError{Cause: b[i]}
		}
	}

	return err
}

// LoadEvents returns the events recorded for the instance with the given ID.
func (ds *DataStore) LoadEvents(
	ctx context.Context,
	id string,
) (persistence.EventResult, error) {
	r, err := ds.DataStore.LoadEvents(ctx, id)
	if err != nil {
		return nil, err
	}

	return &eventResult{r, ds.Policy}, nil
}

// LoadBlueprint loads the blueprint with the given ID.
func (ds *DataStore) LoadBlueprint(
	ctx context.Context,
	id string,
) (persistence.BlueprintRecord, bool, error) {
	r, ok, err := ds.DataStore.LoadBlueprint(ctx, id)
	if !ok || err != nil {
		return r, ok, err
	}

	r, err = decryptBlueprint(ds.Policy, r)
	return r, err == nil, err
}

// LoadBlueprints loads every blueprint, ordered by ID.
func (ds *DataStore) LoadBlueprints(ctx context.Context) ([]persistence.BlueprintRecord, error) {
	records, err := ds.DataStore.LoadBlueprints(ctx)
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		records[i], err = decryptBlueprint(ds.Policy, r)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

func decryptBlueprint(
	p encryption.Policy,
	r persistence.BlueprintRecord,
) (persistence.BlueprintRecord, error) {
	data, err := p.Decrypt(r.Packet.Data)
	if err != nil {
		return persistence.BlueprintRecord{}, fmt.Errorf(
			"unable to decrypt blueprint %s: %w",
			r.ID,
			err,
		)
	}

	r.Packet.Data = data
	return r, nil
}

// eventResult is an implementation of persistence.EventResult that decrypts
// each event as it is read.
type eventResult struct {
	persistence.EventResult
	policy encryption.Policy
}

func (r *eventResult) Next(ctx context.Context) (persistence.Event, bool, error) {
	ev, ok, err := r.EventResult.Next(ctx)
	if !ok || err != nil {
		return ev, ok, err
	}

	data, err := r.policy.Decrypt(ev.Packet.Data)
	if err != nil {
		return persistence.Event{}, false, fmt.Errorf(
			"unable to decrypt event %d of instance %s: %w",
			ev.Sequence,
			ev.InstanceID,
			err,
		)
	}

	ev.Packet.Data = data
	return ev, true, nil
}
