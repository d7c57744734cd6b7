package index

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/encryption"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"golang.org/x/sync/errgroup"
)

// DefaultRetentionBackoff is the default backoff strategy used to reopen the
// journal's instance ID feed after it fails.
var DefaultRetentionBackoff backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(10*time.Millisecond),
	linger.FullJitter,
	linger.Limiter(0, 5*time.Second),
)

// runRetention deletes instances once their blueprint's retention period
// has elapsed.
//
// Candidates are discovered by tailing the journal's instance ID feed, and
// are checked once per check interval. Journal failures are logged and
// retried, so runRetention only returns once ctx is canceled.
func (l *Local) runRetention(ctx context.Context) error {
	c := &candidates{}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return l.tailInstanceIDs(ctx, c)
	})

	g.Go(func() error {
		for {
			if err := linger.Sleep(ctx, l.Retention.checkInterval()); err != nil {
				return err
			}

			l.Metrics.live(l.records().Len())

			if err := l.expire(ctx, c); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}

// tailInstanceIDs adds each ID in the journal's instance ID feed to c.
//
// If the feed fails it is reopened at the offset following the last ID that
// was received.
func (l *Local) tailInstanceIDs(ctx context.Context, c *candidates) error {
	strategy := l.RetentionBackoff
	if strategy == nil {
		strategy = DefaultRetentionBackoff
	}

	counter := backoff.Counter{Strategy: strategy}
	var offset uint64

	for {
		err := l.consumeInstanceIDs(ctx, c, &offset, &counter)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logging.Log(
			l.Logger,
			"unable to read the instance ID feed at offset %d: %s",
			offset,
			err,
		)

		if err := counter.Sleep(ctx, err); err != nil {
			return err
		}
	}
}

// consumeInstanceIDs opens the instance ID feed at *offset and adds each ID
// to c until an error occurs.
func (l *Local) consumeInstanceIDs(
	ctx context.Context,
	c *candidates,
	offset *uint64,
	counter *backoff.Counter,
) error {
	cur, err := l.DataStore.OpenInstanceIDStream(ctx, *offset)
	if err != nil {
		return err
	}
	defer cur.Close()

	for {
		id, next, err := cur.Next(ctx)
		if err != nil {
			return err
		}

		counter.Reset()
		c.add(id)
		*offset = next
	}
}

// expire deletes each owned candidate whose retention period has elapsed.
//
// Candidates that can never expire are forgotten. Failures to load or delete
// a single instance are logged and retried at the next check.
func (l *Local) expire(ctx context.Context, c *candidates) error {
	now := l.now()

	for _, id := range c.list() {
		if l.Guard != nil && !l.Guard.Owns(id) {
			continue
		}

		md, ok, err := l.DataStore.LoadInstanceMetadata(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}

			logging.Log(
				l.Logger,
				"unable to load the metadata of instance %s: %s",
				id,
				err,
			)

			continue
		}

		if !ok || md.IsDeleted {
			c.remove(id)
			continue
		}

		bp, err := l.Blueprints.Get(ctx, md.BlueprintID)
		if err != nil {
			var unknown blueprint.UnknownBlueprintError
			if errors.As(err, &unknown) || errors.Is(err, encryption.ErrDecryptionFailed) {
				c.remove(id)
				continue
			}

			if ctx.Err() != nil {
				return err
			}

			logging.Log(
				l.Logger,
				"unable to load the blueprint of instance %s: %s",
				id,
				err,
			)

			continue
		}

		if bp.RetentionPeriod <= 0 {
			c.remove(id)
			continue
		}

		if now.Before(md.CreatedAt.Add(bp.RetentionPeriod)) {
			continue
		}

		if err := l.delete(ctx, id, "retention period elapsed"); err != nil {
			if ctx.Err() != nil {
				return err
			}

			logging.Log(
				l.Logger,
				"unable to delete expired instance %s: %s",
				id,
				err,
			)

			continue
		}

		c.remove(id)
	}

	return nil
}

// candidates is the set of instances that may be subject to expiry.
type candidates struct {
	m   sync.Mutex
	ids map[string]struct{}
}

func (c *candidates) add(id string) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.ids == nil {
		c.ids = map[string]struct{}{}
	}

	c.ids[id] = struct{}{}
}

func (c *candidates) remove(id string) {
	c.m.Lock()
	defer c.m.Unlock()

	delete(c.ids, id)
}

func (c *candidates) list() []string {
	c.m.Lock()
	defer c.m.Unlock()

	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}

	return ids
}
