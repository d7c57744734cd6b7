// Package cache is an in-memory cache of live process instances, keyed by
// instance ID.
//
// Each record is protected by a context-aware mutex, which serializes every
// operation performed on a single instance.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/bakerykit/bakery/internal/mlog"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
)

// DefaultInterval is the default interval at which the cache checks for idle
// records.
const DefaultInterval = 1 * time.Minute

// Cache is an in-memory cache of process instances.
type Cache[T any] struct {
	// IdleTimeout is the period of time after which an unused record is
	// passivated (removed from memory). If it is non-positive, records are
	// never passivated for being idle.
	IdleTimeout time.Duration

	// Interval is the interval at which the cache checks for idle records. If
	// it is non-positive, DefaultInterval is used.
	Interval time.Duration

	// Logger is the target for log messages about modifications to the cache.
	Logger logging.Logger

	// OnPassivate, if non-nil, is called each time a record is passivated.
	OnPassivate func(id string)

	// Now returns the current time. If it is nil, time.Now() is used.
	Now func() time.Time

	records sync.Map
}

// Acquire locks and returns the cache record with the given ID.
//
// If the record has already been acquired, it blocks until the record is
// released or ctx is canceled.
func (c *Cache[T]) Acquire(ctx context.Context, id string) (*Record[T], error) {
	for {
		rec := &Record[T]{
			id:       id,
			cache:    c,
			lastUsed: c.now(),
		}

		if x, loaded := c.records.LoadOrStore(id, rec); loaded {
			rec = x.(*Record[T])
		} else if logging.IsDebug(c.Logger) {
			logging.Debug(
				c.Logger,
				"record added: %s (%p)",
				id,
				rec,
			)
		}

		if err := rec.m.Lock(ctx); err != nil {
			return nil, err
		}

		if rec.state != removed {
			return rec, nil
		}

		// This record was removed from the cache while we waited for the
		// lock. Unlock it for any other blocked acquirers and try again.
		rec.m.Unlock()
	}
}

// Run passivates idle records until ctx is canceled.
func (c *Cache[T]) Run(ctx context.Context) error {
	for {
		if err := linger.Sleep(ctx, c.Interval, DefaultInterval); err != nil {
			return err
		}

		c.PassivateIdle()
	}
}

// PassivateIdle removes each unlocked record that has not been used within the
// idle timeout.
func (c *Cache[T]) PassivateIdle() {
	if c.IdleTimeout <= 0 {
		return
	}

	now := c.now()

	c.records.Range(
		func(_, x interface{}) bool {
			x.(*Record[T]).passivateIfIdle(now)
			return true
		},
	)
}

// Passivate removes each record with an ID that matches pred.
//
// Unlike PassivateIdle(), it waits for locked records to be released, so that
// in-flight operations complete before their record is removed. It returns the
// number of records removed.
func (c *Cache[T]) Passivate(ctx context.Context, pred func(id string) bool) (int, error) {
	var matches []*Record[T]

	c.records.Range(
		func(k, x interface{}) bool {
			if pred(k.(string)) {
				matches = append(matches, x.(*Record[T]))
			}
			return true
		},
	)

	n := 0

	for _, rec := range matches {
		if err := rec.m.Lock(ctx); err != nil {
			return n, err
		}

		if rec.state != removed {
			rec.remove()
			mlog.LogPassivated(c.Logger, rec.id, c.now().Sub(rec.lastUsed))
			c.notify(rec.id)
			n++
		}

		rec.m.Unlock()
	}

	return n, nil
}

// Len returns the number of records in the cache.
func (c *Cache[T]) Len() int {
	n := 0

	c.records.Range(
		func(_, _ interface{}) bool {
			n++
			return true
		},
	)

	return n
}

// Contains returns true if the cache has a record for the given ID.
func (c *Cache[T]) Contains(id string) bool {
	_, ok := c.records.Load(id)
	return ok
}

func (c *Cache[T]) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

func (c *Cache[T]) notify(id string) {
	if c.OnPassivate != nil {
		c.OnPassivate(id)
	}
}
