package providertest

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/persistence"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func declareJournalTests(tc *TestContext) {
	ginkgo.Context("journal", func() {
		var dataStore persistence.DataStore

		ginkgo.BeforeEach(func() {
			var tearDown func()
			dataStore, tearDown = tc.SetupDataStore()
			ginkgo.DeferCleanup(tearDown)
		})

		ginkgo.Describe("type persistence.AppendEvent", func() {
			ginkgo.It("appends events in sequence order", func() {
				ev0 := newEvent("<instance>", 0)
				ev1 := newEvent("<instance>", 1)
				ev2 := newEvent("<instance>", 2)

				persist(
					tc.Context,
					dataStore,
					persistence.AppendEvent{Event: ev0},
					persistence.AppendEvent{Event: ev1},
				)
				persist(
					tc.Context,
					dataStore,
					persistence.AppendEvent{Event: ev2},
				)

				expectEventsToEqual(
					loadEvents(tc.Context, dataStore, "<instance>"),
					[]persistence.Event{ev0, ev1, ev2},
				)
			})

			ginkgo.DescribeTable(
				"it does not append the event when an OCC conflict occurs",
				func(seq int) {
					persist(
						tc.Context,
						dataStore,
						persistence.AppendEvent{Event: newEvent("<instance>", 0)},
					)

					op := persistence.AppendEvent{Event: newEvent("<instance>", uint64(seq))}
					err := dataStore.Persist(tc.Context, persistence.Batch{op})
					gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: op}))

					gomega.Expect(loadEvents(tc.Context, dataStore, "<instance>")).To(gomega.HaveLen(1))
				},
				ginkgo.Entry("duplicate sequence", 0),
				ginkgo.Entry("gap in sequence", 2),
			)

			ginkgo.It("does not apply any operation in the batch when one of them conflicts", func() {
				md := persistence.SaveInstanceMetadata{
					Metadata: persistence.InstanceMetadata{
						InstanceID:  "<instance>",
						BlueprintID: "<blueprint>",
						CreatedAt:   baseTime,
					},
				}
				conflicting := persistence.AppendEvent{Event: newEvent("<instance>", 1)}

				err := dataStore.Persist(tc.Context, persistence.Batch{md, conflicting})
				gomega.Expect(err).To(gomega.Equal(persistence.ConflictError{Cause: conflicting}))

				_, ok, err := dataStore.LoadInstanceMetadata(tc.Context, "<instance>")
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		})

		ginkgo.Describe("func LoadEvents()", func() {
			ginkgo.It("returns an empty result if the instance has no events", func() {
				gomega.Expect(loadEvents(tc.Context, dataStore, "<instance>")).To(gomega.BeEmpty())
			})

			ginkgo.It("only returns events for the given instance", func() {
				ev := newEvent("<instance-1>", 0)

				persist(
					tc.Context,
					dataStore,
					persistence.AppendEvent{Event: ev},
					persistence.AppendEvent{Event: newEvent("<instance-2>", 0)},
				)

				expectEventsToEqual(
					loadEvents(tc.Context, dataStore, "<instance-1>"),
					[]persistence.Event{ev},
				)
			})
		})

		ginkgo.Describe("func LoadInstanceIDs()", func() {
			ginkgo.It("returns the IDs of every journaled instance in the order they were first journaled", func() {
				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-b>", 0)})
				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-a>", 0)})
				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-b>", 1)})

				ids, err := dataStore.LoadInstanceIDs(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(ids).To(gomega.Equal([]string{"<instance-b>", "<instance-a>"}))
			})
		})

		ginkgo.Describe("func OpenInstanceIDStream()", func() {
			ginkgo.BeforeEach(func() {
				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-1>", 0)})
				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-2>", 0)})
			})

			ginkgo.It("yields existing IDs starting at the given offset", func() {
				cur, err := dataStore.OpenInstanceIDStream(tc.Context, 1)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				id, next, err := cur.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(id).To(gomega.Equal("<instance-2>"))
				gomega.Expect(next).To(gomega.BeEquivalentTo(2))
			})

			ginkgo.It("blocks until a new instance is journaled", func() {
				cur, err := dataStore.OpenInstanceIDStream(tc.Context, 2)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				go func() {
					defer ginkgo.GinkgoRecover()

					time.Sleep(tc.Out.AssumeBlockingDuration)
					persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-3>", 0)})
				}()

				id, next, err := cur.Next(tc.Context)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				gomega.Expect(id).To(gomega.Equal("<instance-3>"))
				gomega.Expect(next).To(gomega.BeEquivalentTo(3))
			})

			ginkgo.It("does not yield an ID again when further events are appended", func() {
				cur, err := dataStore.OpenInstanceIDStream(tc.Context, 2)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
				defer cur.Close()

				persist(tc.Context, dataStore, persistence.AppendEvent{Event: newEvent("<instance-1>", 1)})

				ctx, cancel := context.WithTimeout(tc.Context, tc.Out.AssumeBlockingDuration)
				defer cancel()

				_, _, err = cur.Next(ctx)
				gomega.Expect(err).To(gomega.Equal(context.DeadlineExceeded))
			})

			ginkgo.It("returns an error from Next() once the cursor is closed", func() {
				cur, err := dataStore.OpenInstanceIDStream(tc.Context, 2)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				go func() {
					time.Sleep(tc.Out.AssumeBlockingDuration)
					cur.Close()
				}()

				_, _, err = cur.Next(tc.Context)
				gomega.Expect(err).To(gomega.HaveOccurred())
			})
		})
	})
}
