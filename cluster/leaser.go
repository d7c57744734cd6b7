package cluster

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bakerykit/bakery/internal/mlog"
	"github.com/bakerykit/bakery/internal/x/syncx"
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/google/uuid"
)

// DefaultLeaseDuration is the default period for which a shard lease is held
// without being renewed.
const DefaultLeaseDuration = 10 * time.Second

// Leaser acquires, renews and releases the leases on the shards assigned to
// the local member.
type Leaser struct {
	// DataStore is the shared journal in which leases are stored.
	DataStore persistence.DataStore

	// Membership is the source of the live member list used to assign
	// shards.
	Membership *Membership

	// ShardCount is the number of shards in the cluster.
	ShardCount uint32

	// LeaseDuration is the period for which each lease is held. Leases are
	// renewed three times per period. If it is non-positive,
	// DefaultLeaseDuration is used.
	LeaseDuration time.Duration

	// OnLose, if non-nil, is called when the local member stops owning a
	// shard. It is called before the lease is released, so that in-flight
	// writes are still accepted.
	OnLose func(ctx context.Context, shard uint32) error

	// Logger is the target for log messages about changes in ownership.
	Logger logging.Logger

	// Now returns the current time. If it is nil, time.Now() is used.
	Now func() time.Time

	locks syncx.MutexNamespace[uint32]
	m     sync.RWMutex
	held  map[uint32]persistence.ShardLease
}

// Owns returns true if the local member holds the lease on the instance's
// shard.
func (l *Leaser) Owns(instanceID string) bool {
	_, ok := l.lease(ShardOf(instanceID, l.ShardCount))
	return ok
}

// Fence returns the operation that must be added to each batch that modifies
// the instance.
//
// It returns a NotOwnerError if the local member does not hold the lease on
// the instance's shard.
func (l *Leaser) Fence(_ context.Context, instanceID string) ([]persistence.Operation, error) {
	shard := ShardOf(instanceID, l.ShardCount)

	lease, ok := l.lease(shard)
	if !ok {
		return nil, NotOwnerError{InstanceID: instanceID, Shard: shard}
	}

	return []persistence.Operation{
		persistence.CheckShardLease{
			Shard: shard,
			Token: lease.Token,
		},
	}, nil
}

// Owner returns the member that currently holds the lease on a shard.
//
// ok is false if the lease is not held by any member.
func (l *Leaser) Owner(ctx context.Context, shard uint32) (m Member, ok bool, err error) {
	if _, ok := l.lease(shard); ok {
		return l.Membership.Self, true, nil
	}

	lease, err := l.DataStore.LoadShardLease(ctx, shard)
	if err != nil {
		return Member{}, false, err
	}

	if !lease.IsHeldAt(l.now()) || lease.NodeID == l.Membership.Self.ID {
		return Member{}, false, nil
	}

	return Member{ID: lease.NodeID, Address: lease.Address}, true, nil
}

// Held returns the shards that the local member holds, in ascending order.
func (l *Leaser) Held() []uint32 {
	l.m.RLock()
	defer l.m.RUnlock()

	now := l.now()
	shards := make([]uint32, 0, len(l.held))

	for shard, lease := range l.held {
		if lease.IsHeldAt(now) {
			shards = append(shards, shard)
		}
	}

	sort.Slice(shards, func(i, j int) bool {
		return shards[i] < shards[j]
	})

	return shards
}

// Run maintains the local member's leases until ctx is canceled.
//
// When ctx is canceled every held lease is released.
func (l *Leaser) Run(ctx context.Context) error {
	defer l.releaseAll()

	for {
		if err := l.Reconcile(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logging.Log(l.Logger, "unable to reconcile shard leases: %s", err)
		}

		if err := linger.Sleep(ctx, l.leaseDuration()/3); err != nil {
			return err
		}
	}
}

// Reconcile acquires or renews the lease on each shard assigned to the local
// member, and releases the lease on each held shard that is assigned to some
// other member.
func (l *Leaser) Reconcile(ctx context.Context) error {
	members := l.Membership.Members()

	for shard := uint32(0); shard < l.ShardCount; shard++ {
		m, _ := Assign(shard, members)

		var err error
		if m.Address == l.Membership.Self.Address {
			err = l.acquireOrRenew(ctx, shard)
		} else {
			err = l.release(ctx, shard)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// acquireOrRenew acquires the lease on a shard, or renews it if it is
// already held.
func (l *Leaser) acquireOrRenew(ctx context.Context, shard uint32) error {
	unlock, err := l.locks.Lock(ctx, shard)
	if err != nil {
		return err
	}
	defer unlock()

	l.m.RLock()
	cur, ok := l.held[shard]
	l.m.RUnlock()

	now := l.now()

	if ok {
		if !cur.IsHeldAt(now) {
			return l.lose(ctx, shard, errors.New("lease expired before it was renewed"))
		}

		next := cur
		next.ExpiresAt = now.Add(l.leaseDuration())

		err := l.DataStore.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveShardLease{Lease: next},
			},
		)

		var conflict persistence.ConflictError
		if errors.As(err, &conflict) {
			return l.lose(ctx, shard, errors.New("lease was taken by another member"))
		} else if err != nil {
			return err
		}

		next.Revision++
		l.store(next)

		return nil
	}

	cur, err = l.DataStore.LoadShardLease(ctx, shard)
	if err != nil {
		return err
	}

	if cur.IsHeldAt(now) && cur.NodeID != l.Membership.Self.ID {
		// Wait for the current holder to release the lease, or for it to
		// expire.
		return nil
	}

	next := persistence.ShardLease{
		Shard:     shard,
		NodeID:    l.Membership.Self.ID,
		Address:   l.Membership.Self.Address,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(l.leaseDuration()),
		Revision:  cur.Revision,
	}

	err = l.DataStore.Persist(
		ctx,
		persistence.Batch{
			persistence.SaveShardLease{Lease: next},
		},
	)

	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		// Another member acquired the lease first.
		return nil
	} else if err != nil {
		return err
	}

	next.Revision++
	l.store(next)

	mlog.LogShardAcquired(l.Logger, shard, l.Membership.Self.Address)

	return nil
}

// release releases the lease on a shard, if it is held.
func (l *Leaser) release(ctx context.Context, shard uint32) error {
	unlock, err := l.locks.Lock(ctx, shard)
	if err != nil {
		return err
	}
	defer unlock()

	l.m.Lock()
	cur, ok := l.held[shard]
	delete(l.held, shard)
	l.m.Unlock()

	if !ok {
		return nil
	}

	if err := l.onLose(ctx, shard); err != nil {
		return err
	}

	next := cur
	next.Token = ""
	next.ExpiresAt = time.Time{}

	err = l.DataStore.Persist(
		ctx,
		persistence.Batch{
			persistence.SaveShardLease{Lease: next},
		},
	)

	var conflict persistence.ConflictError
	if err != nil && !errors.As(err, &conflict) {
		return err
	}

	mlog.LogShardReleased(l.Logger, shard, l.Membership.Self.Address, nil)

	return nil
}

// lose forgets a lease that is no longer held.
func (l *Leaser) lose(ctx context.Context, shard uint32, cause error) error {
	l.m.Lock()
	delete(l.held, shard)
	l.m.Unlock()

	mlog.LogShardReleased(l.Logger, shard, l.Membership.Self.Address, cause)

	return l.onLose(ctx, shard)
}

// releaseAll releases every held lease.
func (l *Leaser) releaseAll() {
	ctx, cancel := context.WithTimeout(context.Background(), l.leaseDuration())
	defer cancel()

	for _, shard := range l.Held() {
		if err := l.release(ctx, shard); err != nil {
			logging.Log(l.Logger, "unable to release the lease on shard %d: %s", shard, err)
		}
	}
}

func (l *Leaser) onLose(ctx context.Context, shard uint32) error {
	if l.OnLose != nil {
		return l.OnLose(ctx, shard)
	}

	return nil
}

// lease returns the lease on the given shard if it is held by the local
// member.
func (l *Leaser) lease(shard uint32) (persistence.ShardLease, bool) {
	l.m.RLock()
	defer l.m.RUnlock()

	lease, ok := l.held[shard]
	if !ok || !lease.IsHeldAt(l.now()) {
		return persistence.ShardLease{}, false
	}

	return lease, true
}

func (l *Leaser) store(lease persistence.ShardLease) {
	l.m.Lock()
	defer l.m.Unlock()

	if l.held == nil {
		l.held = map[uint32]persistence.ShardLease{}
	}

	l.held[lease.Shard] = lease
}

func (l *Leaser) leaseDuration() time.Duration {
	if l.LeaseDuration > 0 {
		return l.LeaseDuration
	}

	return DefaultLeaseDuration
}

func (l *Leaser) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}

	return time.Now()
}
