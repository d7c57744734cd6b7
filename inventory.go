package bakery

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/index"
	"go.uber.org/multierr"
)

// Inventory returns the metadata of every instance in the journal described
// by cfg that has not been deleted.
//
// It reads the journal directly, without starting a runtime or joining the
// cluster, so it only works with a journal that can be opened alongside the
// runtime, such as a shared journal server. It fails with an
// index.QueryTimeoutError if the journal can not be read within the given
// timeout.
func Inventory(
	ctx context.Context,
	cfg Config,
	timeout time.Duration,
	options ...RuntimeOption,
) (_ []index.Metadata, err error) {
	opts := resolveRuntimeOptions(options...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := cfg.encryptionPolicy()
	if err != nil {
		return nil, err
	}

	ds, err := openJournal(
		ctx,
		cfg.persistenceProvider(opts),
		policy,
		Environment{JournalName: cfg.Journal.Name},
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, ds.Close())
	}()

	local := &index.Local{
		DataStore:        ds,
		ConcurrencyLimit: opts.ConcurrencyLimit,
		Logger:           opts.Logger,
	}

	return local.ListAll(ctx, timeout)
}
