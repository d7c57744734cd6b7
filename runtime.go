// Package bakery is a runtime for long-running process instances.
//
// Each process instance is a state machine bound to an immutable blueprint.
// The runtime locates, supervises and tears down instances, either within a
// single process or across the members of a cluster.
package bakery

import (
	"context"
	"errors"
	"fmt"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/index"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"go.uber.org/multierr"
)

// Runtime is a running process index.
type Runtime struct {
	// Index is the process index.
	Index index.Index

	// Blueprints is the registry of blueprints that instances are bound to.
	Blueprints *blueprint.Registry

	deployment *Deployment
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

// Start starts a runtime with the given configuration.
//
// It returns once the process index is ready to serve requests. It returns a
// ConfigError if cfg is invalid.
func Start(ctx context.Context, cfg Config, options ...RuntimeOption) (*Runtime, error) {
	opts := resolveRuntimeOptions(options...)

	provider, err := cfg.deployment(opts)
	if err != nil {
		return nil, err
	}

	env, err := opts.environment(cfg)
	if err != nil {
		return nil, err
	}

	d, err := provider.Provide(ctx, env)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		Index:      d.Index,
		Blueprints: d.Blueprints,
		deployment: d,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go r.run(runCtx, opts.Logger)

	ctx, cancelWait := linger.ContextWithTimeout(ctx, opts.StartTimeout)
	defer cancelWait()

	select {
	case <-d.Ready():
		return r, nil
	case <-r.done:
		return nil, r.err
	case <-ctx.Done():
		return nil, multierr.Append(
			fmt.Errorf("runtime did not become ready: %w", ctx.Err()),
			r.Stop(),
		)
	}
}

// Done returns a channel that is closed when the runtime stops.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that caused the runtime to stop, if any.
//
// It returns nil if the runtime has not stopped or was stopped by Stop().
func (r *Runtime) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Stop stops the runtime and releases its resources.
//
// A cluster member releases its shard leases before Stop() returns. It is
// safe to call Stop() more than once.
func (r *Runtime) Stop() error {
	r.cancel()
	<-r.done
	return r.err
}

func (r *Runtime) run(ctx context.Context, logger logging.Logger) {
	defer close(r.done)

	err := r.deployment.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	} else if err != nil {
		logging.Log(logger, "runtime stopped: %s", err)
	}

	r.err = multierr.Append(err, r.deployment.Close())
}
