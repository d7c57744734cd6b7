package fixtures

import (
	"context"

	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/memory"
)

// ProviderStub is a test implementation of the persistence.Provider interface.
type ProviderStub struct {
	persistence.Provider

	OpenFunc func(context.Context, string) (persistence.DataStore, error)
}

// Open returns the data-store for a specific journal.
func (p *ProviderStub) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	if p.OpenFunc != nil {
		return p.OpenFunc(ctx, name)
	}

	if p.Provider != nil {
		ds, err := p.Provider.Open(ctx, name)
		if ds != nil {
			ds = &DataStoreStub{DataStore: ds}
		}
		return ds, err
	}

	return nil, nil
}

// DataStoreStub is a test implementation of the persistence.DataStore interface.
type DataStoreStub struct {
	persistence.DataStore

	LoadInstanceMetadataFunc func(context.Context, string) (persistence.InstanceMetadata, bool, error)
	LoadEventsFunc           func(context.Context, string) (persistence.EventResult, error)
	LoadInstanceIDsFunc      func(context.Context) ([]string, error)
	OpenInstanceIDStreamFunc func(context.Context, uint64) (persistence.InstanceIDCursor, error)
	LoadBlueprintFunc        func(context.Context, string) (persistence.BlueprintRecord, bool, error)
	LoadBlueprintsFunc       func(context.Context) ([]persistence.BlueprintRecord, error)
	LoadShardLeaseFunc       func(context.Context, uint32) (persistence.ShardLease, error)
	PersistFunc              func(context.Context, persistence.Batch) error
	CloseFunc                func() error
}

// NewDataStoreStub returns a new data-store stub that uses an in-memory
// persistence provider.
func NewDataStoreStub() *DataStoreStub {
	p := &ProviderStub{
		Provider: &memory.Provider{},
	}

	ds, err := p.Open(context.Background(), "<journal>")
	if err != nil {
		panic(err)
	}

	return ds.(*DataStoreStub)
}

// LoadInstanceMetadata loads the metadata for an instance.
func (ds *DataStoreStub) LoadInstanceMetadata(
	ctx context.Context,
	id string,
) (persistence.InstanceMetadata, bool, error) {
	if ds.LoadInstanceMetadataFunc != nil {
		return ds.LoadInstanceMetadataFunc(ctx, id)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadInstanceMetadata(ctx, id)
	}

	return persistence.InstanceMetadata{}, false, nil
}

// LoadEvents returns the events recorded for an instance.
func (ds *DataStoreStub) LoadEvents(
	ctx context.Context,
	id string,
) (persistence.EventResult, error) {
	if ds.LoadEventsFunc != nil {
		return ds.LoadEventsFunc(ctx, id)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadEvents(ctx, id)
	}

	return &persistence.EventSlice{}, nil
}

// LoadInstanceIDs returns the IDs of every journaled instance.
func (ds *DataStoreStub) LoadInstanceIDs(ctx context.Context) ([]string, error) {
	if ds.LoadInstanceIDsFunc != nil {
		return ds.LoadInstanceIDsFunc(ctx)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadInstanceIDs(ctx)
	}

	return nil, nil
}

// OpenInstanceIDStream returns a cursor over the live instance ID feed.
func (ds *DataStoreStub) OpenInstanceIDStream(
	ctx context.Context,
	offset uint64,
) (persistence.InstanceIDCursor, error) {
	if ds.OpenInstanceIDStreamFunc != nil {
		return ds.OpenInstanceIDStreamFunc(ctx, offset)
	}

	if ds.DataStore != nil {
		return ds.DataStore.OpenInstanceIDStream(ctx, offset)
	}

	return nil, nil
}

// LoadBlueprint loads a blueprint by its ID.
func (ds *DataStoreStub) LoadBlueprint(
	ctx context.Context,
	id string,
) (persistence.BlueprintRecord, bool, error) {
	if ds.LoadBlueprintFunc != nil {
		return ds.LoadBlueprintFunc(ctx, id)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadBlueprint(ctx, id)
	}

	return persistence.BlueprintRecord{}, false, nil
}

// LoadBlueprints loads every blueprint.
func (ds *DataStoreStub) LoadBlueprints(ctx context.Context) ([]persistence.BlueprintRecord, error) {
	if ds.LoadBlueprintsFunc != nil {
		return ds.LoadBlueprintsFunc(ctx)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadBlueprints(ctx)
	}

	return nil, nil
}

// LoadShardLease loads the lease for a shard.
func (ds *DataStoreStub) LoadShardLease(
	ctx context.Context,
	shard uint32,
) (persistence.ShardLease, error) {
	if ds.LoadShardLeaseFunc != nil {
		return ds.LoadShardLeaseFunc(ctx, shard)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadShardLease(ctx, shard)
	}

	return persistence.ShardLease{Shard: shard}, nil
}

// Persist commits a batch of operations atomically.
func (ds *DataStoreStub) Persist(
	ctx context.Context,
	b persistence.Batch,
) error {
	if ds.PersistFunc != nil {
		return ds.PersistFunc(ctx, b)
	}

	if ds.DataStore != nil {
		return ds.DataStore.Persist(ctx, b)
	}

	return nil
}

// Close closes the data store.
func (ds *DataStoreStub) Close() error {
	if ds.CloseFunc != nil {
		return ds.CloseFunc()
	}

	if ds.DataStore != nil {
		return ds.DataStore.Close()
	}

	return nil
}
