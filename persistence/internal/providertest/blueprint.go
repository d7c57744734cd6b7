package providertest

import (
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/marshalkit"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func declareBlueprintTests(tc *TestContext) {
	ginkgo.Context("blueprints", func() {
		var (
			dataStore persistence.DataStore
			record1   persistence.BlueprintRecord
			record2   persistence.BlueprintRecord
		)

		ginkgo.BeforeEach(func() {
			var tearDown func()
			dataStore, tearDown = tc.SetupDataStore()
			ginkgo.DeferCleanup(tearDown)

			record1 = persistence.BlueprintRecord{
				ID: "<blueprint-1>",
				Packet: marshalkit.Packet{
					MediaType: "application/json; type=Blueprint",
					Data:      []byte(`{"name":"one"}`),
				},
			}

			record2 = persistence.BlueprintRecord{
				ID: "<blueprint-2>",
				Packet: marshalkit.Packet{
					MediaType: "application/json; type=Blueprint",
					Data:      []byte(`{"name":"two"}`),
				},
			}
		})

		ginkgo.Describe("func LoadBlueprint()", func() {
			ginkgo.It("returns false if the blueprint does not exist", func() {
				_, ok, err := dataStore.LoadBlueprint(tc.Context, "<blueprint-1>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("type persistence.SaveBlueprint", func() {
			ginkgo.It("saves the blueprint", func() {
				persist(tc.Context, dataStore, persistence.SaveBlueprint{Blueprint: record1})

				r, ok, err := dataStore.LoadBlueprint(tc.Context, "<blueprint-1>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(r).To(gomega.Equal(record1))
			})

			ginkgo.It("does not overwrite an existing blueprint", func() {
				persist(tc.Context, dataStore, persistence.SaveBlueprint{Blueprint: record1})

				changed := record1
				changed.Packet.Data = []byte(`{"name":"changed"}`)
				persist(tc.Context, dataStore, persistence.SaveBlueprint{Blueprint: changed})

				r, _, err := dataStore.LoadBlueprint(tc.Context, "<blueprint-1>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(r).To(gomega.Equal(record1))
			})
		})

		ginkgo.Describe("func LoadBlueprints()", func() {
			ginkgo.It("returns all blueprints ordered by ID", func() {
				persist(tc.Context, dataStore, persistence.SaveBlueprint{Blueprint: record2})
				persist(tc.Context, dataStore, persistence.SaveBlueprint{Blueprint: record1})

				records, err := dataStore.LoadBlueprints(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records).To(gomega.Equal(
					[]persistence.BlueprintRecord{record1, record2},
				))
			})

			ginkgo.It("returns an empty result if there are no blueprints", func() {
				records, err := dataStore.LoadBlueprints(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(records).To(gomega.BeEmpty())
			})
		})
	})
}
