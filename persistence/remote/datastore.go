package remote

import (
	"context"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence"
	"google.golang.org/grpc"
)

// dataStore is an implementation of persistence.DataStore that accesses a
// journal hosted by a remote Server.
type dataStore struct {
	conn *grpc.ClientConn
	name string

	// lifetime is canceled when the data-store is closed. It is the parent of
	// the contexts used by open cursors.
	lifetime context.Context
	cancel   context.CancelFunc
}

// Persist commits a batch of operations atomically.
func (ds *dataStore) Persist(ctx context.Context, b persistence.Batch) error {
	b.MustValidate()

	if err := ds.checkOpen(); err != nil {
		return err
	}

	ops, err := marshalBatch(ctx, b)
	if err != nil {
		return err
	}

	_, err = grpcx.Invoke[persistResponse](
		ctx,
		ds.conn,
		serviceName,
		"Persist",
		&persistRequest{
			Journal:    ds.name,
			Operations: ops,
		},
	)
	if err != nil {
		return fromStatus(ctx, err, b)
	}

	return nil
}

// LoadInstanceMetadata loads the metadata for the instance with the given ID.
func (ds *dataStore) LoadInstanceMetadata(
	ctx context.Context,
	id string,
) (persistence.InstanceMetadata, bool, error) {
	res, err := grpcx.Invoke[loadInstanceMetadataResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadInstanceMetadata",
		&loadInstanceMetadataRequest{
			Journal:    ds.name,
			InstanceID: id,
		},
	)
	if err != nil {
		return persistence.InstanceMetadata{}, false, fromStatus(ctx, err, nil)
	}

	return res.Metadata, res.Found, nil
}

// LoadEvents returns the events recorded for the instance with the given ID.
func (ds *dataStore) LoadEvents(
	ctx context.Context,
	id string,
) (persistence.EventResult, error) {
	res, err := grpcx.Invoke[loadEventsResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadEvents",
		&loadEventsRequest{
			Journal:    ds.name,
			InstanceID: id,
		},
	)
	if err != nil {
		return nil, fromStatus(ctx, err, nil)
	}

	return &persistence.EventSlice{Events: res.Events}, nil
}

// LoadInstanceIDs returns the IDs of every journaled instance.
func (ds *dataStore) LoadInstanceIDs(ctx context.Context) ([]string, error) {
	res, err := grpcx.Invoke[loadInstanceIDsResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadInstanceIDs",
		&loadInstanceIDsRequest{Journal: ds.name},
	)
	if err != nil {
		return nil, fromStatus(ctx, err, nil)
	}

	return res.InstanceIDs, nil
}

// OpenInstanceIDStream returns a cursor over the live feed of instance IDs.
func (ds *dataStore) OpenInstanceIDStream(
	ctx context.Context,
	offset uint64,
) (persistence.InstanceIDCursor, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	return openCursor(ctx, ds, offset)
}

// LoadBlueprint loads the blueprint with the given ID.
func (ds *dataStore) LoadBlueprint(
	ctx context.Context,
	id string,
) (persistence.BlueprintRecord, bool, error) {
	res, err := grpcx.Invoke[loadBlueprintResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadBlueprint",
		&loadBlueprintRequest{
			Journal:     ds.name,
			BlueprintID: id,
		},
	)
	if err != nil {
		return persistence.BlueprintRecord{}, false, fromStatus(ctx, err, nil)
	}

	return res.Blueprint, res.Found, nil
}

// LoadBlueprints loads every blueprint, ordered by ID.
func (ds *dataStore) LoadBlueprints(ctx context.Context) ([]persistence.BlueprintRecord, error) {
	res, err := grpcx.Invoke[loadBlueprintsResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadBlueprints",
		&loadBlueprintsRequest{Journal: ds.name},
	)
	if err != nil {
		return nil, fromStatus(ctx, err, nil)
	}

	return res.Blueprints, nil
}

// LoadShardLease loads the lease for the given shard.
func (ds *dataStore) LoadShardLease(
	ctx context.Context,
	shard uint32,
) (persistence.ShardLease, error) {
	res, err := grpcx.Invoke[loadShardLeaseResponse](
		ctx,
		ds.conn,
		serviceName,
		"LoadShardLease",
		&loadShardLeaseRequest{
			Journal: ds.name,
			Shard:   shard,
		},
	)
	if err != nil {
		return persistence.ShardLease{}, fromStatus(ctx, err, nil)
	}

	return res.Lease, nil
}

// Close closes the data store.
//
// The journal itself remains open on the server.
func (ds *dataStore) Close() error {
	if err := ds.checkOpen(); err != nil {
		return err
	}

	ds.cancel()

	return ds.conn.Close()
}

// checkOpen returns an error if the data-store has been closed.
func (ds *dataStore) checkOpen() error {
	if ds.lifetime.Err() != nil {
		return persistence.ErrDataStoreClosed
	}

	return nil
}
