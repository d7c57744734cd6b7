package providertest

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

// Out is a container for values that are provided by the provider-specific
// "before" function.
type Out struct {
	// NewProvider returns a new provider under test, along with a function
	// that releases its resources.
	//
	// Each call must return a provider that shares its underlying storage
	// with previously returned providers.
	NewProvider func() (persistence.Provider, func())

	// IsShared is true if the provider allows a journal to be opened more
	// than once at the same time.
	IsShared bool

	// TestTimeout is the maximum duration allowed for each test.
	TestTimeout time.Duration

	// AssumeBlockingDuration specifies how long the tests should wait before
	// assuming a call to InstanceIDCursor.Next() is blocked waiting for a new
	// ID, as opposed to still checking for existing IDs.
	AssumeBlockingDuration time.Duration
}

const (
	// DefaultTestTimeout is the default test timeout.
	DefaultTestTimeout = 3 * time.Second

	// DefaultAssumeBlockingDuration is the default "assumed blocking duration".
	DefaultAssumeBlockingDuration = 150 * time.Millisecond

	// JournalName is the name of the journal opened by the test suite.
	JournalName = "<journal>"
)

// TestContext encapsulates the shared state passed to the tests for each
// persistence concern.
type TestContext struct {
	Context context.Context
	Out     Out
}

// SetupDataStore opens the journal used by the tests.
func (tc *TestContext) SetupDataStore() (persistence.DataStore, func()) {
	p, closeProvider := tc.Out.NewProvider()

	ds, err := p.Open(tc.Context, JournalName)
	if err != nil {
		closeProvider()
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	return ds, func() {
		ds.Close()
		closeProvider()
	}
}

// Declare declares generic behavioral tests for a specific persistence
// provider implementation.
func Declare(
	before func(context.Context) Out,
	after func(),
) {
	tc := &TestContext{}

	ginkgo.Context("standard provider test suite", func() {
		ginkgo.BeforeEach(func() {
			setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelSetup()

			tc.Out = before(setupCtx)

			if tc.Out.TestTimeout <= 0 {
				tc.Out.TestTimeout = DefaultTestTimeout
			}

			if tc.Out.AssumeBlockingDuration <= 0 {
				tc.Out.AssumeBlockingDuration = DefaultAssumeBlockingDuration
			}

			var cancel context.CancelFunc
			tc.Context, cancel = context.WithTimeout(context.Background(), tc.Out.TestTimeout)
			ginkgo.DeferCleanup(cancel)
		})

		ginkgo.AfterEach(func() {
			if after != nil {
				after()
			}
		})

		declareProviderTests(tc)
		declareInstanceTests(tc)
		declareJournalTests(tc)
		declareBlueprintTests(tc)
		declareLeaseTests(tc)
	})
}
