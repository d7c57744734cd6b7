package bboltx

import (
	"context"
	"os"

	"github.com/dogmatiq/linger"
	"go.etcd.io/bbolt"
)

// DefaultMode is the file mode used by Open() when mode is zero.
const DefaultMode os.FileMode = 0600

// Open opens the BoltDB database at the given path, creating it if necessary.
//
// BoltDB holds an exclusive file lock on open databases. Open() waits for the
// lock no longer than the deadline of ctx, or opts.Timeout if it is sooner.
// If the lock can not be acquired in time it returns context.DeadlineExceeded.
func Open(
	ctx context.Context,
	path string,
	mode os.FileMode,
	opts *bbolt.Options,
) (*bbolt.DB, error) {
	// A non-positive timeout in the options means "wait forever", so we bail
	// out before handing an expired deadline to BoltDB.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mode == 0 {
		mode = DefaultMode
	}

	if timeout, ok := linger.FromContextDeadline(ctx); ok {
		var clone bbolt.Options
		if opts != nil {
			clone = *opts
		} else {
			clone = *bbolt.DefaultOptions
		}

		if clone.Timeout == 0 || clone.Timeout > timeout {
			clone.Timeout = timeout
		}

		opts = &clone
	}

	db, err := bbolt.Open(path, mode, opts)
	if err == bbolt.ErrTimeout {
		return nil, context.DeadlineExceeded
	}

	return db, err
}
