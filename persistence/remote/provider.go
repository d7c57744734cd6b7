package remote

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultPingBackoff is the default backoff strategy used while waiting for
// the journal server to become available.
var DefaultPingBackoff backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(10*time.Millisecond),
	linger.FullJitter,
	linger.Limiter(0, 1*time.Second),
)

// Provider is an implementation of persistence.Provider that opens journals
// hosted by a remote Server.
//
// Journals are shared. The same journal may be opened any number of times, by
// any number of processes.
type Provider struct {
	// Address is the network address of the journal server.
	Address string

	// DialOptions is a set of additional options used when dialing the server.
	DialOptions []grpc.DialOption

	// PingBackoff is the backoff strategy used while waiting for the server to
	// become available. If it is nil, DefaultPingBackoff is used.
	PingBackoff backoff.Strategy
}

// Open returns the data-store for the journal with the given name.
//
// It blocks until the server confirms that the journal is available, retrying
// while the server is unreachable, until ctx is canceled.
func (p *Provider) Open(ctx context.Context, name string) (persistence.DataStore, error) {
	conn, err := grpcx.Dial(p.Address, p.DialOptions...)
	if err != nil {
		return nil, err
	}

	if err := p.ping(ctx, conn, name); err != nil {
		conn.Close()
		return nil, err
	}

	lifetime, cancel := context.WithCancel(context.Background())

	return &dataStore{
		conn:     conn,
		name:     name,
		lifetime: lifetime,
		cancel:   cancel,
	}, nil
}

// ping calls the Ping method until it succeeds or fails for some reason other
// than the server being unavailable.
func (p *Provider) ping(
	ctx context.Context,
	conn grpc.ClientConnInterface,
	name string,
) error {
	strategy := p.PingBackoff
	if strategy == nil {
		strategy = DefaultPingBackoff
	}

	counter := backoff.Counter{Strategy: strategy}

	for {
		_, err := grpcx.Invoke[pingResponse](
			ctx,
			conn,
			serviceName,
			"Ping",
			&pingRequest{Journal: name},
		)
		if err == nil {
			return nil
		}

		err = fromStatus(ctx, err, nil)

		if status.Code(err) != codes.Unavailable {
			return err
		}

		if err := counter.Sleep(ctx, err); err != nil {
			return err
		}
	}
}
