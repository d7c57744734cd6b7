package boltdb

import (
	"context"
	"sync"

	"github.com/bakerykit/bakery/internal/x/bboltx"
	"github.com/bakerykit/bakery/persistence"
	"go.etcd.io/bbolt"
)

// dataStore is an implementation of persistence.DataStore for BoltDB.
//
// All of a journal's buckets are nested within a top-level bucket named after
// the journal.
type dataStore struct {
	db      *bbolt.DB
	name    []byte
	release func() error

	m      sync.Mutex
	ready  chan struct{} // closed when new IDs are added to the feed
	closed chan struct{}
	once   sync.Once
}

func newDataStore(db *bbolt.DB, name string, release func() error) *dataStore {
	return &dataStore{
		db:      db,
		name:    []byte(name),
		release: release,
		closed:  make(chan struct{}),
	}
}

// Persist commits a batch of operations atomically.
func (ds *dataStore) Persist(ctx context.Context, b persistence.Batch) error {
	b.MustValidate()

	if err := ds.checkOpen(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			root := bboltx.CreateBucketIfNotExists(tx, ds.name)

			bboltx.Must(b.AcceptVisitor(ctx, &validator{root: root}))
			bboltx.Must(b.AcceptVisitor(ctx, &committer{root, tx, ds}))
		},
	)
}

// LoadInstanceMetadata loads the metadata for the instance with the given ID.
func (ds *dataStore) LoadInstanceMetadata(
	ctx context.Context,
	id string,
) (md persistence.InstanceMetadata, ok bool, err error) {
	err = ds.view(ctx, func(tx *bbolt.Tx) {
		if data := bboltx.Get(tx, []byte(id), ds.name, instancesBucketKey); data != nil {
			md = unmarshalInstance(id, data)
			ok = true
		}
	})

	return md, ok, err
}

// LoadEvents returns the events recorded for the instance with the given ID.
//
// Events are read within a single transaction, so the result is a consistent
// snapshot of the instance's journal.
func (ds *dataStore) LoadEvents(
	ctx context.Context,
	id string,
) (persistence.EventResult, error) {
	var events []persistence.Event

	err := ds.view(ctx, func(tx *bbolt.Tx) {
		b := bboltx.Bucket(tx, ds.name, eventsBucketKey, []byte(id))
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(k, v []byte) error {
			events = append(
				events,
				unmarshalEvent(id, unmarshalUint64(k), v),
			)
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}

	return &persistence.EventSlice{Events: events}, nil
}

// LoadInstanceIDs returns the IDs of every journaled instance.
func (ds *dataStore) LoadInstanceIDs(ctx context.Context) ([]string, error) {
	var ids []string

	err := ds.view(ctx, func(tx *bbolt.Tx) {
		b := bboltx.Bucket(tx, ds.name, feedBucketKey)
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(_, v []byte) error {
			ids = append(ids, string(v))
			return nil
		}))
	})

	return ids, err
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
		ds:     ds,
		offset: offset,
		closed: make(chan struct{}),
	}, nil
}

// LoadBlueprint loads the blueprint with the given ID.
func (ds *dataStore) LoadBlueprint(
	ctx context.Context,
	id string,
) (r persistence.BlueprintRecord, ok bool, err error) {
	err = ds.view(ctx, func(tx *bbolt.Tx) {
		if data := bboltx.Get(tx, []byte(id), ds.name, blueprintsBucketKey); data != nil {
			r = persistence.BlueprintRecord{
				ID:     id,
				Packet: unmarshalPacket(data),
			}
			ok = true
		}
	})

	return r, ok, err
}

// LoadBlueprints loads every blueprint, ordered by ID.
func (ds *dataStore) LoadBlueprints(ctx context.Context) ([]persistence.BlueprintRecord, error) {
	var records []persistence.BlueprintRecord

	err := ds.view(ctx, func(tx *bbolt.Tx) {
		b := bboltx.Bucket(tx, ds.name, blueprintsBucketKey)
		if b == nil {
			return
		}

		// BoltDB iterates keys in byte-order, which gives us the order we
		// need for free.
		bboltx.Must(b.ForEach(func(k, v []byte) error {
			records = append(records, persistence.BlueprintRecord{
				ID:     string(k),
				Packet: unmarshalPacket(v),
			})
			return nil
		}))
	})

	return records, err
}

// LoadShardLease loads the lease for the given shard.
func (ds *dataStore) LoadShardLease(
	ctx context.Context,
	shard uint32,
) (l persistence.ShardLease, err error) {
	err = ds.view(ctx, func(tx *bbolt.Tx) {
		l = unmarshalLease(
			shard,
			bboltx.Get(tx, marshalUint32(shard), ds.name, leasesBucketKey),
		)
	})

	return l, err
}

// Close closes the data store.
func (ds *dataStore) Close() error {
	err := persistence.ErrDataStoreClosed

	ds.once.Do(func() {
		close(ds.closed)
		err = ds.release()
	})

	return err
}

// view runs fn within a read-only transaction.
func (ds *dataStore) view(ctx context.Context, fn func(tx *bbolt.Tx)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return bboltx.View(ds.db, fn)
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

// wait returns a channel that is closed when new IDs are added to the feed.
func (ds *dataStore) wait() <-chan struct{} {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.ready == nil {
		ds.ready = make(chan struct{})
	}

	return ds.ready
}

// notify wakes any cursors waiting for new feed entries.
func (ds *dataStore) notify() {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.ready != nil {
		close(ds.ready)
		ds.ready = nil
	}
}
