package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultRouteBackoff is the default backoff strategy used to retry
// operations while the owner of an instance's shard is not known.
var DefaultRouteBackoff backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(10*time.Millisecond),
	linger.FullJitter,
	linger.Limiter(0, 500*time.Millisecond),
)

// Index is a process index that routes each operation to the member that owns
// the instance's shard.
type Index struct {
	// Local is the process index for the instances owned by the local member.
	Local *index.Local

	// Leaser maintains the local member's shard leases.
	Leaser *Leaser

	// Membership is the source of the live member list.
	Membership *Membership

	// Peers is the connection cache used to reach other members.
	Peers *Peers

	// RouteBackoff is the strategy used to retry operations while ownership
	// of a shard is changing hands. If it is nil, DefaultRouteBackoff is
	// used.
	RouteBackoff backoff.Strategy

	// Logger is the target for log messages about routing.
	Logger logging.Logger
}

var _ index.Index = (*Index)(nil)

// GetOrCreate returns a handle to the instance with the given ID, creating it
// if necessary.
func (x *Index) GetOrCreate(
	ctx context.Context,
	instanceID, blueprintID string,
) (index.Handle, error) {
	if instanceID == "" {
		return nil, errors.New("instance ID must not be empty")
	}

	if blueprintID == "" {
		return nil, errors.New("blueprint ID must not be empty")
	}

	if err := x.route(
		ctx,
		instanceID,
		func(ctx context.Context) error {
			_, err := x.Local.GetOrCreate(ctx, instanceID, blueprintID)
			return err
		},
		func(ctx context.Context, conn grpc.ClientConnInterface) error {
			_, err := grpcx.Invoke[getOrCreateResponse](
				ctx,
				conn,
				serviceName,
				"GetOrCreate",
				&getOrCreateRequest{
					InstanceID:  instanceID,
					BlueprintID: blueprintID,
				},
			)
			return err
		},
	); err != nil {
		return nil, err
	}

	return handle{
		index:       x,
		instanceID:  instanceID,
		blueprintID: blueprintID,
	}, nil
}

// Delete tombstones the instance with the given ID.
func (x *Index) Delete(ctx context.Context, instanceID string) error {
	return x.route(
		ctx,
		instanceID,
		func(ctx context.Context) error {
			return x.Local.Delete(ctx, instanceID)
		},
		func(ctx context.Context, conn grpc.ClientConnInterface) error {
			_, err := grpcx.Invoke[deleteResponse](
				ctx,
				conn,
				serviceName,
				"Delete",
				&deleteRequest{InstanceID: instanceID},
			)
			return err
		},
	)
}

// ListAll returns the metadata of every instance in the cluster that has not
// been deleted.
//
// The shards are partitioned among the live members, each of which lists the
// instances in its partition. If any member fails to answer the entire query
// fails. A member that is unreachable has its partition listed locally.
func (x *Index) ListAll(ctx context.Context, timeout time.Duration) ([]index.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n := x.Leaser.ShardCount
	parts := Partition(n, x.Membership.Members())

	addrs := make([]string, 0, len(parts))
	for addr := range parts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	results := make([][]index.Metadata, len(addrs))
	g, gctx := errgroup.WithContext(ctx)

	for i, addr := range addrs {
		i, addr := i, addr
		shards := parts[addr]

		g.Go(func() error {
			var err error
			results[i], err = x.list(gctx, addr, n, shards, timeout)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, index.QueryTimeoutError{Timeout: timeout}
		}
		return nil, err
	}

	var result []index.Metadata
	for _, r := range results {
		result = append(result, r...)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].InstanceID < result[j].InstanceID
	})

	return result, nil
}

// list lists the instances within the given shards by querying the member at
// addr.
func (x *Index) list(
	ctx context.Context,
	addr string,
	n uint32,
	shards []uint32,
	timeout time.Duration,
) ([]index.Metadata, error) {
	if addr != x.Membership.Self.Address {
		conn, err := x.Peers.Get(addr)
		if err != nil {
			return nil, err
		}

		res, err := grpcx.Invoke[listResponse](
			ctx,
			conn,
			serviceName,
			"List",
			&listRequest{
				ShardCount: n,
				Shards:     shards,
				Timeout:    timeout,
			},
		)
		if err == nil {
			return res.Instances, nil
		}

		err = fromStatus(ctx, err)
		if status.Code(err) != codes.Unavailable {
			return nil, err
		}

		logging.Debug(
			x.Logger,
			"listing %d shard(s) locally, %s is unavailable: %s",
			len(shards),
			addr,
			err,
		)
	}

	return x.Local.List(ctx, timeout, inShards(n, shards))
}

// route performs an operation on the member that owns an instance's shard.
//
// local is called if the local member owns the shard, otherwise remote is
// called with a connection to the owner. The operation is retried while the
// owner is unknown or ownership is changing hands.
func (x *Index) route(
	ctx context.Context,
	instanceID string,
	local func(context.Context) error,
	remote func(context.Context, grpc.ClientConnInterface) error,
) error {
	strategy := x.RouteBackoff
	if strategy == nil {
		strategy = DefaultRouteBackoff
	}

	counter := backoff.Counter{Strategy: strategy}
	shard := ShardOf(instanceID, x.Leaser.ShardCount)

	for {
		err := x.try(ctx, instanceID, shard, local, remote)
		if !isRoutingError(err) {
			return err
		}

		logging.Debug(
			x.Logger,
			"retrying operation on instance %s: %s",
			instanceID,
			err,
		)

		if err := counter.Sleep(ctx, err); err != nil {
			return err
		}
	}
}

func (x *Index) try(
	ctx context.Context,
	instanceID string,
	shard uint32,
	local func(context.Context) error,
	remote func(context.Context, grpc.ClientConnInterface) error,
) error {
	if x.Leaser.Owns(instanceID) {
		return local(ctx)
	}

	owner, ok, err := x.Leaser.Owner(ctx, shard)
	if err != nil {
		return err
	}

	if !ok || owner.Address == x.Membership.Self.Address {
		return ownerUnknownError{Shard: shard}
	}

	conn, err := x.Peers.Get(owner.Address)
	if err != nil {
		return err
	}

	return fromStatus(ctx, remote(ctx, conn))
}

// ownerUnknownError indicates that no member currently holds the lease on a
// shard.
type ownerUnknownError struct {
	Shard uint32
}

func (e ownerUnknownError) Error() string {
	return fmt.Sprintf("the owner of shard %d is not known", e.Shard)
}

// isRoutingError returns true if err indicates that an operation was not
// performed because it was sent to the wrong member.
func isRoutingError(err error) bool {
	if err == nil {
		return false
	}

	var (
		unknown  ownerUnknownError
		notOwner NotOwnerError
		lost     index.OwnershipLostError
	)

	if errors.As(err, &unknown) ||
		errors.As(err, &notOwner) ||
		errors.As(err, &lost) {
		return true
	}

	if _, ok := status.FromError(err); ok {
		return status.Code(err) == codes.Unavailable
	}

	return false
}
