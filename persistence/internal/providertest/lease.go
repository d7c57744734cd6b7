package providertest

import (
	"github.com/bakerykit/bakery/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func declareLeaseTests(tc *TestContext) {
	ginkgo.Context("shard leases", func() {
		var (
			dataStore persistence.DataStore
			lease     persistence.ShardLease
		)

		ginkgo.BeforeEach(func() {
			var tearDown func()
			dataStore, tearDown = tc.SetupDataStore()
			ginkgo.DeferCleanup(tearDown)

			lease = persistence.ShardLease{
				Shard:     3,
				NodeID:    "<node>",
				Address:   "<address>",
				Token:     "<token>",
				ExpiresAt: baseTime,
			}
		})

		ginkgo.Describe("func LoadShardLease()", func() {
			ginkgo.It("returns an unheld lease if it has never been saved", func() {
				l, err := dataStore.LoadShardLease(tc.Context, 3)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(l.Shard).To(gomega.BeEquivalentTo(3))
				gomega.Expect(l.Token).To(gomega.BeEmpty())
				gomega.Expect(l.Revision).To(gomega.BeEquivalentTo(0))
			})
		})

		ginkgo.Describe("type persistence.SaveShardLease", func() {
			ginkgo.It("saves the lease and increments the revision", func() {
				persist(tc.Context, dataStore, persistence.SaveShardLease{Lease: lease})

				l, err := dataStore.LoadShardLease(tc.Context, 3)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(l.Token).To(gomega.Equal("<token>"))
				gomega.Expect(l.NodeID).To(gomega.Equal("<node>"))
				gomega.Expect(l.Address).To(gomega.Equal("<address>"))
				gomega.Expect(l.ExpiresAt.Equal(baseTime)).To(gomega.BeTrue())
				gomega.Expect(l.Revision).To(gomega.BeEquivalentTo(1))
			})

			ginkgo.It("does not save the lease when an OCC conflict occurs", func() {
				persist(tc.Context, dataStore, persistence.SaveShardLease{Lease: lease})

				stale := lease
				stale.Token = "<other-token>"
				op := persistence.SaveShardLease{Lease: stale}

				err := dataStore.Persist(tc.Context, persistence.Batch{op})
				gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))

				l, err := dataStore.LoadShardLease(tc.Context, 3)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(l.Token).To(gomega.Equal("<token>"))
			})
		})

		ginkgo.Describe("type persistence.CheckShardLease", func() {
			ginkgo.BeforeEach(func() {
				persist(tc.Context, dataStore, persistence.SaveShardLease{Lease: lease})
			})

			ginkgo.It("allows the batch when the token matches", func() {
				persist(
					tc.Context,
					dataStore,
					persistence.CheckShardLease{Shard: 3, Token: "<token>"},
					persistence.AppendEvent{Event: newEvent("<instance>", 0)},
				)

				gomega.Expect(loadEvents(tc.Context, dataStore, "<instance>")).To(gomega.HaveLen(1))
			})

			ginkgo.It("rejects the batch when the token does not match", func() {
				op := persistence.CheckShardLease{Shard: 3, Token: "<stale-token>"}

				err := dataStore.Persist(
					tc.Context,
					persistence.Batch{
						persistence.AppendEvent{Event: newEvent("<instance>", 0)},
						op,
					},
				)
				gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))

				gomega.Expect(loadEvents(tc.Context, dataStore, "<instance>")).To(gomega.BeEmpty())
			})

			ginkgo.It("rejects the batch when the lease has been released", func() {
				released := lease
				released.Token = ""
				released.Revision = 1
				persist(tc.Context, dataStore, persistence.SaveShardLease{Lease: released})

				op := persistence.CheckShardLease{Shard: 3, Token: ""}
				err := dataStore.Persist(tc.Context, persistence.Batch{op})
				gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))
			})
		})
	})
}
