package providertest

import (
	"github.com/bakerykit/bakery/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func declareProviderTests(tc *TestContext) {
	ginkgo.Describe("type persistence.Provider", func() {
		var (
			provider      persistence.Provider
			closeProvider func()
		)

		ginkgo.BeforeEach(func() {
			provider, closeProvider = tc.Out.NewProvider()
			ginkgo.DeferCleanup(closeProvider)
		})

		ginkgo.Describe("func Open()", func() {
			ginkgo.It("returns different instances for different journals", func() {
				ds1, err := provider.Open(tc.Context, "<journal-1>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer ds1.Close()

				ds2, err := provider.Open(tc.Context, "<journal-2>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer ds2.Close()

				gomega.Expect(ds1).ToNot(gomega.BeIdenticalTo(ds2))
			})

			ginkgo.It("allows the journal to be re-opened after it is closed", func() {
				ds, err := provider.Open(tc.Context, JournalName)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = ds.Close()
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				ds, err = provider.Open(tc.Context, JournalName)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				ds.Close()
			})

			ginkgo.It("returns an error if the journal is already open and the provider is not shared", func() {
				if tc.Out.IsShared {
					ginkgo.Skip("provider allows concurrent opens")
				}

				ds, err := provider.Open(tc.Context, JournalName)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer ds.Close()

				_, err = provider.Open(tc.Context, JournalName)
				gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreLocked))
			})
		})
	})

	ginkgo.Describe("type persistence.DataStore", func() {
		ginkgo.Describe("func Close()", func() {
			ginkgo.It("causes Persist() to return an error", func() {
				ds, tearDown := tc.SetupDataStore()
				defer tearDown()

				ds.Close()

				err := ds.Persist(
					tc.Context,
					persistence.Batch{
						persistence.SaveShardLease{
							Lease: persistence.ShardLease{Shard: 1},
						},
					},
				)
				gomega.Expect(err).To(gomega.MatchError(persistence.ErrDataStoreClosed))
			})

			ginkgo.It("returns an error if the data-store is already closed", func() {
				ds, tearDown := tc.SetupDataStore()
				defer tearDown()

				err := ds.Close()
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				err = ds.Close()
				gomega.Expect(err).To(gomega.MatchError(persistence.ErrDataStoreClosed))
			})
		})
	})
}
