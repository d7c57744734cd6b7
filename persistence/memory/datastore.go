package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bakerykit/bakery/persistence"
)

// dataStore is an implementation of persistence.DataStore for the in-memory
// persistence provider.
type dataStore struct {
	db *database

	once   sync.Once
	closed chan struct{}
}

func newDataStore(db *database) *dataStore {
	return &dataStore{
		db:     db,
		closed: make(chan struct{}),
	}
}

// Persist commits a batch of operations atomically.
func (ds *dataStore) Persist(ctx context.Context, b persistence.Batch) error {
	b.MustValidate()

	if err := ds.checkOpen(); err != nil {
		return err
	}

	if err := ds.db.mutex.Lock(ctx); err != nil {
		return err
	}
	defer ds.db.mutex.Unlock()

	if err := b.AcceptVisitor(ctx, &validator{db: ds.db}); err != nil {
		return err
	}

	return b.AcceptVisitor(ctx, &committer{ds.db})
}

// LoadInstanceMetadata loads the metadata for the instance with the given ID.
func (ds *dataStore) LoadInstanceMetadata(
	ctx context.Context,
	id string,
) (persistence.InstanceMetadata, bool, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return persistence.InstanceMetadata{}, false, err
	}
	defer ds.db.mutex.Unlock()

	md, ok := ds.db.instances[id]
	return md, ok, nil
}

// LoadEvents returns the events recorded for the instance with the given ID.
func (ds *dataStore) LoadEvents(
	ctx context.Context,
	id string,
) (persistence.EventResult, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return nil, err
	}
	defer ds.db.mutex.Unlock()

	source := ds.db.events[id]
	events := make([]persistence.Event, len(source))

	for i, ev := range source {
		events[i] = cloneEvent(ev)
	}

	return &persistence.EventSlice{Events: events}, nil
}

// LoadInstanceIDs returns the IDs of every journaled instance.
func (ds *dataStore) LoadInstanceIDs(ctx context.Context) ([]string, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return nil, err
	}
	defer ds.db.mutex.Unlock()

	return append([]string(nil), ds.db.feed...), nil
}

// OpenInstanceIDStream returns a cursor over the live feed of instance IDs.
func (ds *dataStore) OpenInstanceIDStream(
	ctx context.Context,
	offset uint64,
) (persistence.InstanceIDCursor, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	return &cursor{
		db:     ds.db,
		offset: offset,
		store:  ds.closed,
		closed: make(chan struct{}),
	}, nil
}

// LoadBlueprint loads the blueprint with the given ID.
func (ds *dataStore) LoadBlueprint(
	ctx context.Context,
	id string,
) (persistence.BlueprintRecord, bool, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return persistence.BlueprintRecord{}, false, err
	}
	defer ds.db.mutex.Unlock()

	r, ok := ds.db.blueprints[id]
	if ok {
		r.Packet = clonePacket(r.Packet)
	}

	return r, ok, nil
}

// LoadBlueprints loads every blueprint, ordered by ID.
func (ds *dataStore) LoadBlueprints(ctx context.Context) ([]persistence.BlueprintRecord, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return nil, err
	}
	defer ds.db.mutex.Unlock()

	records := make([]persistence.BlueprintRecord, 0, len(ds.db.blueprints))
	for _, r := range ds.db.blueprints {
		r.Packet = clonePacket(r.Packet)
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})

	return records, nil
}

// LoadShardLease loads the lease for the given shard.
func (ds *dataStore) LoadShardLease(
	ctx context.Context,
	shard uint32,
) (persistence.ShardLease, error) {
	if err := ds.db.mutex.Lock(ctx); err != nil {
		return persistence.ShardLease{}, err
	}
	defer ds.db.mutex.Unlock()

	if l, ok := ds.db.leases[shard]; ok {
		return l, nil
	}

	return persistence.ShardLease{Shard: shard}, nil
}

// Close closes the data store.
func (ds *dataStore) Close() error {
	err := persistence.ErrDataStoreClosed

	ds.once.Do(func() {
		close(ds.closed)
		ds.db.Close()
		err = nil
	})

	return err
}

// checkOpen returns an error if the data-store has been closed.
func (ds *dataStore) checkOpen() error {
	select {
	case <-ds.closed:
		return persistence.ErrDataStoreClosed
	default:
		return nil
	}
}
