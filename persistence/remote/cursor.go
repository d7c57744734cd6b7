package remote

import (
	"context"
	"fmt"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence"
	"google.golang.org/grpc"
)

// prefetch is the number of instance IDs buffered by a cursor before they are
// requested by a call to Next().
const prefetch = 16

// openCursor opens a cursor that consumes the instance ID feed via the
// ConsumeInstanceIDs gRPC method.
func openCursor(
	ctx context.Context,
	ds *dataStore,
	offset uint64,
) (*cursor, error) {
	// consumeCtx spans the lifetime of the gRPC stream, which has no Close()
	// method of its own. It is derived from the data-store's lifetime, not
	// from ctx, which only spans this call.
	consumeCtx, cancelConsume := context.WithCancel(ds.lifetime)

	done := make(chan struct{})

	// Abort the pending call if ctx is canceled before it returns.
	go func() {
		select {
		case <-ctx.Done():
			cancelConsume()
		case <-done:
		}
	}()

	stream, err := grpcx.OpenServerStream(
		consumeCtx,
		ds.conn,
		serviceName,
		"ConsumeInstanceIDs",
		&consumeInstanceIDsRequest{
			Journal: ds.name,
			Offset:  offset,
		},
	)

	select {
	case <-ctx.Done():
		// cancelConsume() is called by the goroutine above.
		return nil, ctx.Err()

	case done <- struct{}{}:
		if err != nil {
			cancelConsume()
			return nil, fromStatus(ctx, err, nil)
		}

		c := &cursor{
			stream: stream,
			cancel: cancelConsume,
			ids:    make(chan consumeInstanceIDsResponse, prefetch),
		}

		go c.consume()

		return c, nil
	}
}

// cursor is an implementation of persistence.InstanceIDCursor that consumes
// instance IDs from a remote journal.
type cursor struct {
	stream grpc.ClientStream
	cancel context.CancelFunc
	ids    chan consumeInstanceIDsResponse
	err    error
}

// Next returns the next instance ID and the offset of the following entry.
func (c *cursor) Next(ctx context.Context) (string, uint64, error) {
	select {
	case <-ctx.Done():
		return "", 0, ctx.Err()

	case res, ok := <-c.ids:
		if ok {
			return res.InstanceID, res.Next, nil
		}

		return "", 0, fmt.Errorf("%w: %s", persistence.ErrCursorClosed, c.err)
	}
}

// Close stops the cursor.
func (c *cursor) Close() error {
	c.cancel()
	return nil
}

// consume receives instance IDs from the stream and pipes them over c.ids
// until the stream fails or is canceled.
func (c *cursor) consume() {
	defer close(c.ids)

	for c.err == nil {
		c.err = c.recv()
	}
}

func (c *cursor) recv() error {
	var res consumeInstanceIDsResponse
	if err := c.stream.RecvMsg(&res); err != nil {
		return err
	}

	select {
	case c.ids <- res:
		return nil
	case <-c.stream.Context().Done():
		return c.stream.Context().Err()
	}
}
