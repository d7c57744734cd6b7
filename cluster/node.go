package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Node is a member of a cluster.
//
// It hosts a local process index for the instances in the shards it owns, and
// routes operations on other instances to their owners.
type Node struct {
	// Listener accepts connections from the other members.
	Listener net.Listener

	// Address is the address at which other members reach this node. If it is
	// empty, the listener's address is used.
	Address string

	// Seeds is the list of addresses used to join the cluster.
	Seeds []string

	// ShardCount is the number of shards in the cluster. If it is zero,
	// DefaultShardCount is used.
	ShardCount uint32

	// LeaseDuration is the period for which each shard lease is held. If it
	// is non-positive, DefaultLeaseDuration is used.
	LeaseDuration time.Duration

	// HeartbeatInterval is the interval at which other members are pinged.
	HeartbeatInterval time.Duration

	// FailureTimeout is the period after which an unresponsive member is
	// removed from the cluster.
	FailureTimeout time.Duration

	// Local is the process index for the instances owned by this node. Its
	// Guard is set by the node.
	Local *index.Local

	// ServerOptions is a set of options for the gRPC server.
	ServerOptions []grpc.ServerOption

	// DialOptions is a set of options used when dialing other members.
	DialOptions []grpc.DialOption

	// Logger is the target for log messages about the cluster.
	Logger logging.Logger

	once       sync.Once
	ready      chan struct{}
	membership *Membership
	leaser     *Leaser
	peers      *Peers
	index      *Index
}

// Index returns the process index that routes operations across the cluster.
func (n *Node) Index() *Index {
	n.init()
	return n.index
}

// Leaser returns the node's shard leaser.
func (n *Node) Leaser() *Leaser {
	n.init()
	return n.leaser
}

// Membership returns the node's view of the cluster membership.
func (n *Node) Membership() *Membership {
	n.init()
	return n.membership
}

// Ready returns a channel that is closed once the node has joined the cluster
// and made its first attempt to acquire its shards.
func (n *Node) Ready() <-chan struct{} {
	n.init()
	return n.ready
}

// Run serves the node until ctx is canceled or an error occurs.
func (n *Node) Run(ctx context.Context) error {
	n.init()
	defer n.peers.Close()

	server := grpcx.NewServer(n.ServerOptions...)
	(&Server{
		Membership: n.membership,
		Leaser:     n.leaser,
		Local:      n.Local,
	}).Register(server)

	logging.Log(
		n.Logger,
		"member %s (%s) listening on %s",
		n.membership.Self.Address,
		n.membership.Self.ID,
		n.Listener.Addr(),
	)

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := grpcx.Serve(ctx, n.Listener, server)
		return fmt.Errorf("gRPC server stopped: %w", err)
	})

	g.Go(func() error {
		if err := n.membership.Bootstrap(ctx); err != nil {
			return fmt.Errorf("unable to join the cluster: %w", err)
		}

		if err := n.leaser.Reconcile(ctx); err != nil {
			logging.Log(n.Logger, "unable to acquire shard leases: %s", err)
		}

		close(n.ready)

		g.Go(func() error {
			return n.membership.Run(ctx)
		})

		g.Go(func() error {
			return n.leaser.Run(ctx)
		})

		g.Go(func() error {
			return n.Local.Run(ctx)
		})

		return nil
	})

	err := g.Wait()

	if parent.Err() != nil {
		return parent.Err()
	}

	return err
}

func (n *Node) init() {
	n.once.Do(func() {
		shards := n.ShardCount
		if shards == 0 {
			shards = DefaultShardCount
		}

		addr := n.Address
		if addr == "" {
			addr = n.Listener.Addr().String()
		}

		n.ready = make(chan struct{})
		n.peers = &Peers{DialOptions: n.DialOptions}

		n.membership = &Membership{
			Self: Member{
				ID:      uuid.NewString(),
				Address: addr,
			},
			Seeds:             n.Seeds,
			Peers:             n.peers,
			HeartbeatInterval: n.HeartbeatInterval,
			FailureTimeout:    n.FailureTimeout,
			Logger:            n.Logger,
			Now:               n.Local.Now,
		}

		n.leaser = &Leaser{
			DataStore:     n.Local.DataStore,
			Membership:    n.membership,
			ShardCount:    shards,
			LeaseDuration: n.LeaseDuration,
			Logger:        n.Logger,
			Now:           n.Local.Now,
			OnLose: func(ctx context.Context, shard uint32) error {
				_, err := n.Local.Passivate(ctx, func(id string) bool {
					return ShardOf(id, shards) == shard
				})
				return err
			},
		}

		n.Local.Guard = n.leaser

		n.index = &Index{
			Local:      n.Local,
			Leaser:     n.leaser,
			Membership: n.membership,
			Peers:      n.peers,
			Logger:     n.Logger,
		}
	})
}
