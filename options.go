package bakery

import (
	"fmt"
	"net"
	"time"

	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/boltdb"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

var (
	// DefaultPersistenceProvider is the default persistence provider.
	//
	// It is used when the configuration does not describe a journal, and is
	// overridden by the WithPersistence() option.
	DefaultPersistenceProvider persistence.Provider = &boltdb.FileProvider{
		Path: "/var/run/bakery.boltdb",
	}

	// DefaultJournalName is the default name of the journal opened by the
	// runtime.
	DefaultJournalName = "bakery"

	// DefaultStartTimeout is the default duration Start() waits for the
	// deployment to become ready.
	//
	// It is overridden by the WithStartTimeout() option.
	DefaultStartTimeout = 1 * time.Minute

	// DefaultLogger is the default target for log messages produced by the
	// runtime.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// RuntimeOption configures the behavior of a runtime.
type RuntimeOption func(*runtimeOptions)

// WithInteractions returns a runtime option that makes the given interaction
// implementations available to process instances.
//
// It may be specified multiple times. Interaction names must be unique across
// all calls.
func WithInteractions(impls ...interaction.Implementation) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.Interactions = append(opts.Interactions, impls...)
	}
}

// WithPersistence returns a runtime option that sets the persistence provider
// used to open the journal.
//
// It takes precedence over the journal described by the configuration. If
// this option is omitted or p is nil, the configured journal is used.
func WithPersistence(p persistence.Provider) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.PersistenceProvider = p
	}
}

// WithLogger returns a runtime option that sets the target for log messages
// produced by the runtime.
//
// If this option is omitted or l is nil DefaultLogger is used.
func WithLogger(l logging.Logger) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.Logger = l
	}
}

// WithMetrics returns a runtime option that registers the process index
// metrics with r.
//
// If this option is omitted or r is nil, no metrics are collected.
func WithMetrics(r prometheus.Registerer) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.Registerer = r
	}
}

// WithConcurrencyLimit returns a runtime option that limits the number of
// instances the index loads concurrently while answering a query.
//
// If this option is omitted or n is zero index.DefaultConcurrencyLimit is used.
func WithConcurrencyLimit(n int) RuntimeOption {
	if n < 0 {
		panic("concurrency limit must not be negative")
	}

	return func(opts *runtimeOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithStartTimeout returns a runtime option that sets how long Start() waits
// for the deployment to become ready.
//
// If this option is omitted or d is zero DefaultStartTimeout is used.
func WithStartTimeout(d time.Duration) RuntimeOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *runtimeOptions) {
		opts.StartTimeout = d
	}
}

// WithListener returns a runtime option that sets the listener used to accept
// connections from other cluster members.
//
// It takes precedence over the configured listen address, and has no effect
// on a local deployment.
func WithListener(l net.Listener) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.Listener = l
	}
}

// WithServerOptions returns a runtime option that adds options to the gRPC
// server used by a cluster deployment.
func WithServerOptions(options ...grpc.ServerOption) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.ServerOptions = append(opts.ServerOptions, options...)
	}
}

// WithDialOptions returns a runtime option that adds options used when
// dialing other cluster members or a remote journal.
func WithDialOptions(options ...grpc.DialOption) RuntimeOption {
	return func(opts *runtimeOptions) {
		opts.DialOptions = append(opts.DialOptions, options...)
	}
}

// runtimeOptions is a container for a fully-resolved set of runtime options.
type runtimeOptions struct {
	Interactions        []interaction.Implementation
	PersistenceProvider persistence.Provider
	Logger              logging.Logger
	Registerer          prometheus.Registerer
	ConcurrencyLimit    int
	StartTimeout        time.Duration
	Listener            net.Listener
	ServerOptions       []grpc.ServerOption
	DialOptions         []grpc.DialOption
}

// resolveRuntimeOptions returns a fully-populated set of runtime options built
// from the given set of option functions.
func resolveRuntimeOptions(options ...RuntimeOption) *runtimeOptions {
	opts := &runtimeOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	if opts.ConcurrencyLimit == 0 {
		opts.ConcurrencyLimit = index.DefaultConcurrencyLimit
	}

	if opts.StartTimeout == 0 {
		opts.StartTimeout = DefaultStartTimeout
	}

	return opts
}

// environment builds the environment passed to the deployment provider.
func (opts *runtimeOptions) environment(cfg Config) (Environment, error) {
	interactions, err := interaction.NewRegistry(opts.Interactions...)
	if err != nil {
		return Environment{}, err
	}

	env := Environment{
		JournalName:             cfg.Journal.Name,
		Interactions:            interactions,
		FilteredIngredientNames: cfg.FilteredIngredientNames,
		ConcurrencyLimit:        opts.ConcurrencyLimit,
		Logger:                  opts.Logger,
	}

	if opts.Registerer != nil {
		env.Metrics, err = index.NewMetrics(opts.Registerer)
		if err != nil {
			return Environment{}, fmt.Errorf("unable to register metrics: %w", err)
		}
	}

	return env, nil
}
