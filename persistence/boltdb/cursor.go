package boltdb

import (
	"context"
	"sync"

	"github.com/bakerykit/bakery/internal/x/bboltx"
	"github.com/bakerykit/bakery/persistence"
	"go.etcd.io/bbolt"
)

// cursor is an implementation of persistence.InstanceIDCursor for BoltDB.
type cursor struct {
	ds     *dataStore
	offset uint64

	once   sync.Once
	closed chan struct{}
}

// Next returns the next instance ID in the feed.
func (c *cursor) Next(ctx context.Context) (string, uint64, error) {
	for {
		// Obtain the "ready" channel before reading, so that a commit that
		// happens after the read is guaranteed to wake us.
		ready := c.ds.wait()

		var (
			id    string
			found bool
		)

		err := c.ds.view(ctx, func(tx *bbolt.Tx) {
			if v := bboltx.Get(tx, marshalUint64(c.offset), c.ds.name, feedBucketKey); v != nil {
				id = string(v)
				found = true
			}
		})
		if err != nil {
			return "", 0, err
		}

		if found {
			c.offset++
			return id, c.offset, nil
		}

		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-c.closed:
			return "", 0, persistence.ErrCursorClosed
		case <-c.ds.closed:
			return "", 0, persistence.ErrDataStoreClosed
		case <-ready:
		}
	}
}

// Close stops the cursor.
func (c *cursor) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	return nil
}
