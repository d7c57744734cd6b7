package providertest

import (
	"github.com/bakerykit/bakery/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func declareInstanceTests(tc *TestContext) {
	ginkgo.Context("instance metadata", func() {
		var dataStore persistence.DataStore

		ginkgo.BeforeEach(func() {
			var tearDown func()
			dataStore, tearDown = tc.SetupDataStore()
			ginkgo.DeferCleanup(tearDown)
		})

		ginkgo.Describe("func LoadInstanceMetadata()", func() {
			ginkgo.It("returns false if the instance does not exist", func() {
				_, ok, err := dataStore.LoadInstanceMetadata(tc.Context, "<instance>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("type persistence.SaveInstanceMetadata", func() {
			ginkgo.When("the instance does not exist", func() {
				ginkgo.It("saves the metadata with a revision of 1", func() {
					persist(
						tc.Context,
						dataStore,
						persistence.SaveInstanceMetadata{
							Metadata: persistence.InstanceMetadata{
								InstanceID:  "<instance>",
								BlueprintID: "<blueprint>",
								CreatedAt:   baseTime,
							},
						},
					)

					md := loadMetadata(tc.Context, dataStore, "<instance>")
					gomega.Expect(md.InstanceID).To(gomega.Equal("<instance>"))
					gomega.Expect(md.BlueprintID).To(gomega.Equal("<blueprint>"))
					gomega.Expect(md.CreatedAt.Equal(baseTime)).To(gomega.BeTrue())
					gomega.Expect(md.IsDeleted).To(gomega.BeFalse())
					gomega.Expect(md.Revision).To(gomega.BeEquivalentTo(1))
				})

				ginkgo.It("does not save the metadata when an OCC conflict occurs", func() {
					op := persistence.SaveInstanceMetadata{
						Metadata: persistence.InstanceMetadata{
							InstanceID: "<instance>",
							Revision:   123,
						},
					}

					err := dataStore.Persist(tc.Context, persistence.Batch{op})
					gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))

					_, ok, err := dataStore.LoadInstanceMetadata(tc.Context, "<instance>")
					gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
					gomega.Expect(ok).To(gomega.BeFalse())
				})
			})

			ginkgo.When("the instance exists", func() {
				ginkgo.BeforeEach(func() {
					persist(
						tc.Context,
						dataStore,
						persistence.SaveInstanceMetadata{
							Metadata: persistence.InstanceMetadata{
								InstanceID:  "<instance>",
								BlueprintID: "<blueprint>",
								CreatedAt:   baseTime,
							},
						},
					)
				})

				ginkgo.It("updates the metadata and increments the revision", func() {
					persist(
						tc.Context,
						dataStore,
						persistence.SaveInstanceMetadata{
							Metadata: persistence.InstanceMetadata{
								InstanceID:  "<instance>",
								BlueprintID: "<blueprint>",
								CreatedAt:   baseTime,
								IsDeleted:   true,
								Revision:    1,
							},
						},
					)

					md := loadMetadata(tc.Context, dataStore, "<instance>")
					gomega.Expect(md.IsDeleted).To(gomega.BeTrue())
					gomega.Expect(md.Revision).To(gomega.BeEquivalentTo(2))
				})

				ginkgo.DescribeTable(
					"it does not save the metadata when an OCC conflict occurs",
					func(conflictingRevision int) {
						op := persistence.SaveInstanceMetadata{
							Metadata: persistence.InstanceMetadata{
								InstanceID: "<instance>",
								IsDeleted:  true,
								Revision:   uint64(conflictingRevision),
							},
						}

						err := dataStore.Persist(tc.Context, persistence.Batch{op})
						gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))

						md := loadMetadata(tc.Context, dataStore, "<instance>")
						gomega.Expect(md.IsDeleted).To(gomega.BeFalse())
						gomega.Expect(md.Revision).To(gomega.BeEquivalentTo(1))
					},
					ginkgo.Entry("zero", 0),
					ginkgo.Entry("too high", 100),
				)
			})
		})
	})
}
