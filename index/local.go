package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/index/cache"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/internal/mlog"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/process"
	"github.com/bakerykit/bakery/semaphore"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/marshalkit"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrencyLimit is the default number of journal queries a single
// call to ListAll() may issue concurrently.
var DefaultConcurrencyLimit = runtime.GOMAXPROCS(0) * 4

// Local is a process index that manages instances within this process.
//
// Each instance is held in memory while it is in use. All operations on a
// single instance are serialized, while operations on different instances
// proceed in parallel.
type Local struct {
	// DataStore is the journal in which instances are persisted.
	DataStore persistence.DataStore

	// Blueprints is the registry used to resolve blueprint IDs.
	Blueprints *blueprint.Registry

	// Interactions is the registry used to resolve the interactions declared
	// by each blueprint.
	Interactions *interaction.Registry

	// Marshaler is used to marshal instance events. If it is nil,
	// process.DefaultMarshaler is used.
	Marshaler marshalkit.ValueMarshaler

	// Retention is the policy that controls passivation and expiry of
	// instances.
	Retention RetentionPolicy

	// FilteredIngredientNames is the set of ingredients that are omitted from
	// instance snapshots.
	FilteredIngredientNames []string

	// Guard, if non-nil, restricts which instances the index may modify.
	Guard Guard

	// Metrics, if non-nil, records metrics about the index.
	Metrics *Metrics

	// ConcurrencyLimit is the number of journal queries ListAll() may issue
	// concurrently. If it is non-positive, DefaultConcurrencyLimit is used.
	ConcurrencyLimit int

	// Logger is the target for log messages about instances.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	// RetentionBackoff is the strategy used to retry reads of the journal's
	// instance ID feed. If it is nil, DefaultRetentionBackoff is used.
	RetentionBackoff backoff.Strategy

	// Now returns the current time. If it is nil, time.Now() is used.
	Now func() time.Time

	once     sync.Once
	cache    *cache.Cache[*live]
	failures sync.Map // map[string]RecoveryFailedError
}

// live is the in-memory state of an instance held in the cache.
type live struct {
	md           persistence.InstanceMetadata
	bp           blueprint.Blueprint
	capabilities map[string]interaction.Capability
	instance     *process.Instance
}

// GetOrCreate returns a handle to the instance with the given ID, creating it
// if necessary.
//
// Handles to the same instance compare equal. A handle holds no state of its
// own, so it remains valid after the instance is passivated.
func (l *Local) GetOrCreate(
	ctx context.Context,
	instanceID, blueprintID string,
) (Handle, error) {
	if instanceID == "" {
		return nil, errors.New("instance ID must not be empty")
	}

	if blueprintID == "" {
		return nil, errors.New("blueprint ID must not be empty")
	}

	rec, err := l.acquire(ctx, instanceID, blueprintID, true)
	if err != nil {
		return nil, err
	}
	rec.KeepAlive()
	rec.Release()

	return handle{
		index:       l,
		instanceID:  instanceID,
		blueprintID: blueprintID,
	}, nil
}

// Delete tombstones the instance with the given ID.
func (l *Local) Delete(ctx context.Context, instanceID string) error {
	return l.delete(ctx, instanceID, "deleted by request")
}

// ListAll returns the metadata of every instance that has not been deleted.
func (l *Local) ListAll(ctx context.Context, timeout time.Duration) ([]Metadata, error) {
	return l.List(ctx, timeout, nil)
}

// List returns the metadata of every instance that has not been deleted and
// has an ID that matches filter. A nil filter matches every instance.
//
// It fails with a QueryTimeoutError if the query does not complete within the
// given timeout.
func (l *Local) List(
	ctx context.Context,
	timeout time.Duration,
	filter func(instanceID string) bool,
) ([]Metadata, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := l.list(ctx, filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, QueryTimeoutError{Timeout: timeout}
		}
		return nil, err
	}

	l.Metrics.listed(time.Since(start))

	return result, nil
}

func (l *Local) list(
	ctx context.Context,
	filter func(instanceID string) bool,
) ([]Metadata, error) {
	ids, err := l.DataStore.LoadInstanceIDs(ctx)
	if err != nil {
		return nil, err
	}

	limit := l.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	sem := semaphore.New(limit)

	var (
		m      sync.Mutex
		result []Metadata
	)

	g, gctx := errgroup.WithContext(ctx)

	for _, id := range ids {
		if filter != nil && !filter(id) {
			continue
		}

		if err := sem.Acquire(gctx); err != nil {
			break
		}

		id := id
		g.Go(func() error {
			defer sem.Release()

			md, ok, err := l.DataStore.LoadInstanceMetadata(gctx, id)
			if err != nil {
				return err
			}

			if ok && !md.IsDeleted {
				m.Lock()
				result = append(result, Metadata{
					InstanceID:  md.InstanceID,
					BlueprintID: md.BlueprintID,
					CreatedAt:   md.CreatedAt,
				})
				m.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The loop above stops early if the context is canceled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})

	return result, nil
}

// Passivate removes the instances with IDs that match pred from memory.
//
// It waits for in-flight operations on those instances to complete.
func (l *Local) Passivate(ctx context.Context, pred func(instanceID string) bool) (int, error) {
	return l.records().Passivate(ctx, pred)
}

// ClearRecoveryFailure removes an instance from quarantine, allowing another
// attempt to rebuild it from the journal.
//
// It returns false if the instance was not quarantined.
func (l *Local) ClearRecoveryFailure(instanceID string) bool {
	_, ok := l.failures.LoadAndDelete(instanceID)
	return ok
}

// IsLive returns true if the instance is currently held in memory.
func (l *Local) IsLive(instanceID string) bool {
	return l.records().Contains(instanceID)
}

// Run enforces the retention policy until ctx is canceled.
func (l *Local) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.records().Run(ctx)
	})

	g.Go(func() error {
		return l.runRetention(ctx)
	})

	return g.Wait()
}

// acquire locks the cache record for an instance and ensures that the
// instance is loaded.
//
// If blueprintID is non-empty the instance must be bound to that blueprint. If
// create is true the instance is created if it does not exist.
func (l *Local) acquire(
	ctx context.Context,
	instanceID, blueprintID string,
	create bool,
) (*cache.Record[*live], error) {
	if x, ok := l.failures.Load(instanceID); ok {
		return nil, x.(RecoveryFailedError)
	}

	rec, err := l.records().Acquire(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if rec.Instance == nil {
		lv, err := l.load(ctx, instanceID, blueprintID, create)
		if err != nil {
			rec.Release()
			return nil, err
		}

		rec.Instance = lv
	}

	if blueprintID != "" && rec.Instance.md.BlueprintID != blueprintID {
		rec.KeepAlive()
		rec.Release()

		return nil, BlueprintMismatchError{
			InstanceID: instanceID,
			Existing:   rec.Instance.md.BlueprintID,
			Requested:  blueprintID,
		}
	}

	return rec, nil
}

// load loads an instance from the journal, or creates it.
func (l *Local) load(
	ctx context.Context,
	instanceID, blueprintID string,
	create bool,
) (*live, error) {
	md, ok, err := l.DataStore.LoadInstanceMetadata(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if !ok {
		if create {
			return l.create(ctx, instanceID, blueprintID)
		}

		return nil, UnknownInstanceError{InstanceID: instanceID}
	}

	if md.IsDeleted {
		return nil, InstanceDeletedError{InstanceID: instanceID}
	}

	if blueprintID != "" && md.BlueprintID != blueprintID {
		return nil, BlueprintMismatchError{
			InstanceID: instanceID,
			Existing:   md.BlueprintID,
			Requested:  blueprintID,
		}
	}

	return l.rehydrate(ctx, md)
}

// create creates a new instance.
//
// The metadata and the instance's first event are persisted in a single
// atomic batch.
func (l *Local) create(
	ctx context.Context,
	instanceID, blueprintID string,
) (*live, error) {
	bp, err := l.Blueprints.Get(ctx, blueprintID)
	if err != nil {
		return nil, err
	}

	caps, err := l.Interactions.ResolveAll(bp.Interactions)
	if err != nil {
		return nil, err
	}

	now := l.now()

	md := persistence.InstanceMetadata{
		InstanceID:  instanceID,
		BlueprintID: blueprintID,
		CreatedAt:   now,
	}

	ev := process.InstanceCreated{
		InstanceID:  instanceID,
		BlueprintID: blueprintID,
	}

	p, err := l.marshaler().Marshal(ev)
	if err != nil {
		return nil, err
	}

	err = l.persist(
		ctx,
		instanceID,
		persistence.SaveInstanceMetadata{Metadata: md},
		persistence.AppendEvent{
			Event: persistence.Event{
				InstanceID: instanceID,
				Sequence:   0,
				RecordedAt: now,
				Packet:     p,
			},
		},
	)

	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		// The instance was created by another writer that shares the journal.
		return l.load(ctx, instanceID, blueprintID, false)
	} else if err != nil {
		return nil, err
	}

	md.Revision++

	in := &process.Instance{ID: instanceID}
	if err := in.Apply(ev); err != nil {
		return nil, err
	}

	mlog.LogCreated(l.Logger, instanceID, blueprintID)
	l.Metrics.created()

	return &live{
		md:           md,
		bp:           bp,
		capabilities: caps,
		instance:     in,
	}, nil
}

// rehydrate rebuilds an instance by replaying its journal.
func (l *Local) rehydrate(
	ctx context.Context,
	md persistence.InstanceMetadata,
) (*live, error) {
	id := md.InstanceID

	bp, err := l.Blueprints.Get(ctx, md.BlueprintID)
	if err != nil {
		var unknown blueprint.UnknownBlueprintError
		if errors.As(err, &unknown) || errors.Is(err, encryption.ErrDecryptionFailed) {
			return nil, l.quarantine(id, err)
		}
		return nil, err
	}

	caps, err := l.Interactions.ResolveAll(bp.Interactions)
	if err != nil {
		return nil, l.quarantine(id, err)
	}

	r, err := l.DataStore.LoadEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	in := &process.Instance{ID: id}

	for {
		ev, ok, err := r.Next(ctx)
		if err != nil {
			if errors.Is(err, encryption.ErrDecryptionFailed) {
				return nil, l.quarantine(id, err)
			}
			return nil, err
		}

		if !ok {
			break
		}

		if ev.Sequence != in.Version {
			return nil, l.quarantine(id, fmt.Errorf(
				"expected event %d, found event %d",
				in.Version,
				ev.Sequence,
			))
		}

		payload, err := process.UnmarshalEvent(l.marshaler(), ev.Packet)
		if err != nil {
			return nil, l.quarantine(id, err)
		}

		if err := in.Apply(payload); err != nil {
			return nil, l.quarantine(id, err)
		}
	}

	if in.Version == 0 {
		return nil, l.quarantine(id, errors.New("the journal contains no events"))
	}

	mlog.LogRehydrated(l.Logger, id, md.BlueprintID, int(in.Version))
	l.Metrics.rehydrated()

	return &live{
		md:           md,
		bp:           bp,
		capabilities: caps,
		instance:     in,
	}, nil
}

// quarantine records a recovery failure for an instance.
func (l *Local) quarantine(instanceID string, cause error) error {
	err := RecoveryFailedError{
		InstanceID: instanceID,
		Cause:      cause,
	}

	l.failures.Store(instanceID, err)
	mlog.LogRecoveryFailed(l.Logger, instanceID, cause)

	return err
}

// delete tombstones an instance.
func (l *Local) delete(ctx context.Context, instanceID, reason string) error {
	rec, err := l.records().Acquire(ctx, instanceID)
	if err != nil {
		return err
	}

	// The record is never kept, so any live instance is released.
	defer rec.Release()

	var md persistence.InstanceMetadata

	if rec.Instance != nil {
		md = rec.Instance.md
	} else {
		var ok bool
		md, ok, err = l.DataStore.LoadInstanceMetadata(ctx, instanceID)
		if err != nil {
			return err
		}

		if !ok {
			return UnknownInstanceError{InstanceID: instanceID}
		}
	}

	if !md.IsDeleted {
		md.IsDeleted = true

		err := l.persist(
			ctx,
			instanceID,
			persistence.SaveInstanceMetadata{Metadata: md},
		)

		var conflict persistence.ConflictError
		if errors.As(err, &conflict) {
			// Another writer modified the instance first. It is only an error
			// if that writer did not delete it.
			current, _, lerr := l.DataStore.LoadInstanceMetadata(ctx, instanceID)
			if lerr != nil {
				return lerr
			}
			if !current.IsDeleted {
				return err
			}
		} else if err != nil {
			return err
		}

		mlog.LogDeleted(l.Logger, instanceID, reason)
		l.Metrics.deleted()
	}

	l.failures.Delete(instanceID)

	return nil
}

// persist persists a batch of operations that modify an instance, fenced by
// the guard.
func (l *Local) persist(
	ctx context.Context,
	instanceID string,
	ops ...persistence.Operation,
) error {
	b := persistence.Batch(ops)

	if l.Guard != nil {
		fence, err := l.Guard.Fence(ctx, instanceID)
		if err != nil {
			return err
		}

		b = append(b, fence...)
	}

	err := l.DataStore.Persist(ctx, b)

	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		if _, ok := conflict.Cause.(persistence.CheckShardLease); ok {
			return OwnershipLostError{InstanceID: instanceID}
		}
	}

	return err
}

// records returns the cache of live instances.
func (l *Local) records() *cache.Cache[*live] {
	l.once.Do(func() {
		l.cache = &cache.Cache[*live]{
			IdleTimeout: l.Retention.IdleTimeout,
			Interval:    l.Retention.checkInterval(),
			Logger:      l.Logger,
			Now:         l.Now,
			OnPassivate: func(string) {
				l.Metrics.passivated()
			},
		}
	})

	return l.cache
}

func (l *Local) marshaler() marshalkit.ValueMarshaler {
	if l.Marshaler != nil {
		return l.Marshaler
	}

	return process.DefaultMarshaler
}

func (l *Local) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}

	return time.Now()
}
