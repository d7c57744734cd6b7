package memory

import (
	"context"
	"sync"

	"github.com/bakerykit/bakery/persistence"
)

// cursor is an implementation of persistence.InstanceIDCursor that reads from
// an in-memory database.
type cursor struct {
	db     *database
	offset uint64
	store  <-chan struct{} // closed when the data-store is closed

	once   sync.Once
	closed chan struct{}
}

// Next returns the next instance ID in the feed.
func (c *cursor) Next(ctx context.Context) (string, uint64, error) {
	for {
		if err := c.db.mutex.Lock(ctx); err != nil {
			return "", 0, err
		}

		if c.offset < uint64(len(c.db.feed)) {
			id := c.db.feed[c.offset]
			c.db.mutex.Unlock()

			c.offset++
			return id, c.offset, nil
		}

		ready := c.db.wait()
		c.db.mutex.Unlock()

		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-c.closed:
			return "", 0, persistence.ErrCursorClosed
		case <-c.store:
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
