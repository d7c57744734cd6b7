package bakery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/cluster"
	"github.com/bakerykit/bakery/encryption"
	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/internal/x/loggingx"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/encrypted"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var (
	// DefaultJournalInitTimeout is the default duration a cluster deployment
	// waits for its journal to become available.
	DefaultJournalInitTimeout = 30 * time.Second

	// DefaultBootstrapTimeout is the default duration a cluster deployment
	// waits to join the cluster.
	DefaultBootstrapTimeout = 1 * time.Minute
)

// Environment is the set of collaborators shared by every deployment.
type Environment struct {
	// JournalName is the name of the journal to open. If it is empty,
	// DefaultJournalName is used.
	JournalName string

	// Interactions is the registry of interactions available to instances.
	Interactions *interaction.Registry

	// FilteredIngredientNames is the set of ingredient names that are omitted
	// from instance snapshots.
	FilteredIngredientNames []string

	// ConcurrencyLimit is the number of instances loaded concurrently while
	// answering a query.
	ConcurrencyLimit int

	// Metrics is the set of metrics updated by the index. It may be nil.
	Metrics *index.Metrics

	// Logger is the target for log messages.
	Logger logging.Logger
}

func (env Environment) journalName() string {
	if env.JournalName != "" {
		return env.JournalName
	}

	return DefaultJournalName
}

// DeploymentProvider is an interface for strategies that decide where
// process instances are hosted.
type DeploymentProvider interface {
	// Provide opens the deployment's journal and returns a deployment that
	// is ready to run.
	Provide(ctx context.Context, env Environment) (*Deployment, error)
}

// Deployment is a process index along with the resources needed to run it.
type Deployment struct {
	// Index is the process index.
	Index index.Index

	// Blueprints is the registry of the blueprints that instances are bound
	// to.
	Blueprints *blueprint.Registry

	run   func(ctx context.Context) error
	ready <-chan struct{}
	close func() error
}

// Run runs the deployment's background tasks until ctx is canceled or an
// error occurs.
func (d *Deployment) Run(ctx context.Context) error {
	return d.run(ctx)
}

// Ready returns a channel that is closed once the index is able to serve
// requests.
func (d *Deployment) Ready() <-chan struct{} {
	return d.ready
}

// Close releases the deployment's resources.
//
// It must not be called while Run() is still executing.
func (d *Deployment) Close() error {
	return d.close()
}

// LocalDeployment is a DeploymentProvider that hosts every instance within
// the current process.
type LocalDeployment struct {
	// Retention is the policy used to passivate and expire instances.
	Retention index.RetentionPolicy

	// Encryption is the policy used to protect journal payloads. If it is
	// nil, encryption.None is used.
	Encryption encryption.Policy

	// Persistence is the provider used to open the journal. If it is nil,
	// DefaultPersistenceProvider is used.
	Persistence persistence.Provider
}

// Provide opens the deployment's journal and returns a deployment that is
// ready to run.
func (d *LocalDeployment) Provide(ctx context.Context, env Environment) (*Deployment, error) {
	ds, err := openJournal(ctx, d.Persistence, d.Encryption, env)
	if err != nil {
		return nil, err
	}

	blueprints, local := newLocal(ds, d.Retention, env)

	ready := make(chan struct{})
	close(ready)

	return &Deployment{
		Index:      local,
		Blueprints: blueprints,
		run:        local.Run,
		ready:      ready,
		close:      ds.Close,
	}, nil
}

// ClusterDeployment is a DeploymentProvider that spreads instances across
// the members of a cluster.
//
// Each instance belongs to one of a fixed number of shards, and each shard is
// owned by one member at a time. All members must share the same journal.
type ClusterDeployment struct {
	// Retention is the policy used to passivate and expire instances.
	Retention index.RetentionPolicy

	// Encryption is the policy used to protect journal payloads. If it is
	// nil, encryption.None is used.
	Encryption encryption.Policy

	// Persistence is the provider used to open the shared journal. If it is
	// nil, DefaultPersistenceProvider is used.
	Persistence persistence.Provider

	// ShardCount is the number of shards. Every member must use the same
	// value. If it is zero, cluster.DefaultShardCount is used.
	ShardCount uint32

	// SeedNodes is the list of addresses used to join the cluster. It must
	// not be empty.
	SeedNodes []string

	// ListenAddress is the address on which this member accepts connections
	// from other members. It is ignored if Listener is set.
	ListenAddress string

	// Listener accepts connections from other members. If it is nil, a TCP
	// listener is opened on ListenAddress.
	Listener net.Listener

	// JournalInitTimeout is the duration to wait for the journal to become
	// available. If it is zero, DefaultJournalInitTimeout is used.
	JournalInitTimeout time.Duration

	// BootstrapTimeout is the duration to wait to join the cluster. If it is
	// zero, DefaultBootstrapTimeout is used.
	BootstrapTimeout time.Duration

	// LeaseDuration is the period for which each shard lease is held. If it
	// is zero, cluster.DefaultLeaseDuration is used.
	LeaseDuration time.Duration

	// HeartbeatInterval is the interval at which other members are pinged. If
	// it is zero, cluster.DefaultHeartbeatInterval is used.
	HeartbeatInterval time.Duration

	// FailureTimeout is the period after which an unresponsive member is
	// removed from the cluster. If it is zero,
	// cluster.DefaultFailureTimeout is used.
	FailureTimeout time.Duration

	// ServerOptions is a set of options for the gRPC server.
	ServerOptions []grpc.ServerOption

	// DialOptions is a set of options used when dialing other members.
	DialOptions []grpc.DialOption
}

// Provide opens the deployment's journal and returns a deployment that is
// ready to run.
//
// It returns a JournalInitTimeoutError if the journal does not become
// available within d.JournalInitTimeout.
func (d *ClusterDeployment) Provide(ctx context.Context, env Environment) (*Deployment, error) {
	if len(d.SeedNodes) == 0 {
		return nil, ConfigError{
			Field:   "seedNodes",
			Problem: "a cluster requires at least one seed node",
		}
	}

	ds, err := d.openJournal(ctx, env)
	if err != nil {
		return nil, err
	}

	lis := d.Listener
	if lis == nil {
		lis, err = net.Listen("tcp", d.ListenAddress)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("unable to listen on %s: %w", d.ListenAddress, err)
		}
	}

	blueprints, local := newLocal(ds, d.Retention, env)

	node := &cluster.Node{
		Listener:          lis,
		Address:           d.ListenAddress,
		Seeds:             d.SeedNodes,
		ShardCount:        d.ShardCount,
		LeaseDuration:     d.LeaseDuration,
		HeartbeatInterval: d.HeartbeatInterval,
		FailureTimeout:    d.FailureTimeout,
		Local:             local,
		ServerOptions:     d.ServerOptions,
		DialOptions:       d.DialOptions,
		Logger:            loggingx.WithPrefix(env.Logger, "[cluster] "),
	}

	if d.Listener != nil {
		node.Address = ""
	}

	var ran bool

	return &Deployment{
		Index:      node.Index(),
		Blueprints: blueprints,
		run: func(ctx context.Context) error {
			ran = true
			return d.run(ctx, node)
		},
		ready: node.Ready(),
		close: func() error {
			err := ds.Close()

			// The gRPC server closes the listener when it stops.
			if !ran {
				err = multierr.Append(err, lis.Close())
			}

			return err
		},
	}, nil
}

// openJournal opens the shared journal, giving up after the journal
// initialization timeout.
func (d *ClusterDeployment) openJournal(
	ctx context.Context,
	env Environment,
) (persistence.DataStore, error) {
	timeout := d.JournalInitTimeout
	if timeout == 0 {
		timeout = DefaultJournalInitTimeout
	}

	openCtx, cancel := linger.ContextWithTimeout(ctx, timeout)
	defer cancel()

	ds, err := openJournal(openCtx, d.Persistence, d.Encryption, env)
	if err == nil {
		return ds, nil
	}

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, JournalInitTimeoutError{Timeout: timeout}
	}

	return nil, err
}

// run runs the node, failing if it does not join the cluster within the
// bootstrap timeout.
func (d *ClusterDeployment) run(ctx context.Context, node *cluster.Node) error {
	timeout := d.BootstrapTimeout
	if timeout == 0 {
		timeout = DefaultBootstrapTimeout
	}

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return node.Run(ctx)
	})

	g.Go(func() error {
		ctx, cancel := linger.ContextWithTimeout(ctx, timeout)
		defer cancel()

		select {
		case <-node.Ready():
			return nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return BootstrapTimeoutError{Timeout: timeout}
			}
			return ctx.Err()
		}
	})

	err := g.Wait()

	if parent.Err() != nil {
		return parent.Err()
	}

	return err
}

// openJournal opens the named journal, wrapping p with the encryption policy
// if necessary.
func openJournal(
	ctx context.Context,
	p persistence.Provider,
	policy encryption.Policy,
	env Environment,
) (persistence.DataStore, error) {
	if p == nil {
		p = DefaultPersistenceProvider
	}

	if policy != nil && policy != encryption.None {
		p = &encrypted.Provider{
			Provider: p,
			Policy:   policy,
		}
	}

	name := env.journalName()

	ds, err := p.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("unable to open the '%s' journal: %w", name, err)
	}

	return ds, nil
}

// newLocal returns the blueprint registry and local process index for the
// given journal.
func newLocal(
	ds persistence.DataStore,
	retention index.RetentionPolicy,
	env Environment,
) (*blueprint.Registry, *index.Local) {
	blueprints := &blueprint.Registry{
		DataStore: ds,
		Logger:    env.Logger,
	}

	return blueprints, &index.Local{
		DataStore:               ds,
		Blueprints:              blueprints,
		Interactions:            env.Interactions,
		Retention:               retention,
		FilteredIngredientNames: env.FilteredIngredientNames,
		Metrics:                 env.Metrics,
		ConcurrencyLimit:        env.ConcurrencyLimit,
		Logger:                  env.Logger,
	}
}
