package index_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/fixtures"
	. "github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/interaction"
	. "github.com/bakerykit/bakery/internal/x/gomegax"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/process"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Local", func() {
	var (
		ctx          context.Context
		clock        atomic.Int64
		dataStore    *fixtures.DataStoreStub
		blueprints   *blueprint.Registry
		interactions *interaction.Registry
		guard        *fixtures.GuardStub
		logger       *logging.BufferedLogger
		index        *Local
		orderID      string
	)

	now := func() time.Time {
		return time.Unix(0, clock.Load())
	}

	advance := func(d time.Duration) {
		clock.Add(int64(d))
	}

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
		DeferCleanup(cancel)

		clock.Store(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())

		dataStore = fixtures.NewDataStoreStub()
		DeferCleanup(func() { dataStore.Close() })

		logger = &logging.BufferedLogger{CaptureDebug: true}

		blueprints = &blueprint.Registry{
			DataStore: dataStore,
			Logger:    logging.DiscardLogger{},
		}

		var err error
		orderID, err = blueprints.Register(ctx, fixtures.OrderBlueprint)
		Expect(err).ShouldNot(HaveOccurred())

		interactions, err = interaction.NewRegistry(fixtures.OrderInteractions()...)
		Expect(err).ShouldNot(HaveOccurred())

		guard = &fixtures.GuardStub{}

		index = &Local{
			DataStore:    dataStore,
			Blueprints:   blueprints,
			Interactions: interactions,
			Guard:        guard,
			Logger:       logger,
			Now:          now,
		}
	})

	Describe("func GetOrCreate()", func() {
		It("creates the instance if it does not exist", func() {
			h, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.InstanceID()).To(Equal("order-42"))
			Expect(h.BlueprintID()).To(Equal(orderID))

			md, ok, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(md.BlueprintID).To(Equal(orderID))
			Expect(md.CreatedAt).To(BeTemporally("==", now()))
			Expect(md.IsDeleted).To(BeFalse())

			r, err := dataStore.LoadEvents(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			events, err := persistence.LoadAllEvents(ctx, r)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Sequence).To(BeEquivalentTo(0))
		})

		It("returns the existing instance if it has already been created", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			ids, err := dataStore.LoadInstanceIDs(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ids).To(ConsistOf("order-42"))
		})

		It("returns equal handles to concurrent callers", func() {
			var (
				wg      sync.WaitGroup
				m       sync.Mutex
				handles []Handle
			)

			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					h, err := index.GetOrCreate(ctx, "order-42", orderID)
					Expect(err).ShouldNot(HaveOccurred())

					m.Lock()
					handles = append(handles, h)
					m.Unlock()
				}()
			}

			wg.Wait()

			for _, h := range handles {
				Expect(h).To(Equal(handles[0]))
			}
		})

		It("does not retain instances in memory once they are passivated", func() {
			var handles []Handle

			for i := 0; i < 100; i++ {
				h, err := index.GetOrCreate(ctx, fmt.Sprintf("order-%d", i), orderID)
				Expect(err).ShouldNot(HaveOccurred())
				handles = append(handles, h)
			}

			n, err := index.Passivate(ctx, func(string) bool { return true })
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(100))

			for _, h := range handles {
				Expect(index.IsLive(h.InstanceID())).To(BeFalse())

				again, err := index.GetOrCreate(ctx, h.InstanceID(), orderID)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(again).To(Equal(h))
			}
		})

		It("logs about the creation", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(logger.Messages()).To(ContainElement(
				WithTransform(
					func(m logging.BufferedLogMessage) string { return m.Message },
					ContainSubstring("instance created"),
				),
			))
		})

		It("returns an error if the instance is bound to a different blueprint", func() {
			otherID, err := blueprints.Register(ctx, fixtures.ExpiringBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", otherID)
			Expect(err).To(Equal(BlueprintMismatchError{
				InstanceID: "order-42",
				Existing:   orderID,
				Requested:  otherID,
			}))
		})

		It("returns an error if the blueprint is not registered", func() {
			_, err := index.GetOrCreate(ctx, "order-42", "<unknown>")
			Expect(err).To(Equal(blueprint.UnknownBlueprintError{ID: "<unknown>"}))

			_, ok, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("returns an error if one of the blueprint's interactions is not implemented", func() {
			index.Interactions, _ = interaction.NewRegistry()

			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(BeAssignableToTypeOf(interaction.UnknownInteractionError{}))
		})

		It("returns an error if the instance has been deleted", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			err = index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(Equal(InstanceDeletedError{InstanceID: "order-42"}))
		})

		It("returns an error if the instance ID is empty", func() {
			_, err := index.GetOrCreate(ctx, "", orderID)
			Expect(err).To(MatchError("instance ID must not be empty"))
		})

		It("returns an error if the blueprint ID is empty", func() {
			_, err := index.GetOrCreate(ctx, "order-42", "")
			Expect(err).To(MatchError("blueprint ID must not be empty"))
		})

		It("returns an error if the data store fails", func() {
			dataStore.PersistFunc = func(context.Context, persistence.Batch) error {
				return errors.New("<error>")
			}

			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(MatchError("<error>"))
			Expect(index.IsLive("order-42")).To(BeFalse())
		})

		When("ownership of the instance has been lost", func() {
			BeforeEach(func() {
				err := dataStore.Persist(
					ctx,
					persistence.Batch{
						persistence.SaveShardLease{
							Lease: persistence.ShardLease{
								Shard:     3,
								NodeID:    "<new-owner>",
								Token:     "<current-token>",
								ExpiresAt: now().Add(time.Minute),
							},
						},
					},
				)
				Expect(err).ShouldNot(HaveOccurred())

				guard.FenceFunc = func(context.Context, string) ([]persistence.Operation, error) {
					return []persistence.Operation{
						persistence.CheckShardLease{
							Shard: 3,
							Token: "<stale-token>",
						},
					}, nil
				}
			})

			It("rejects the write", func() {
				_, err := index.GetOrCreate(ctx, "order-42", orderID)
				Expect(err).To(Equal(OwnershipLostError{InstanceID: "order-42"}))
				Expect(IsTransient(err)).To(BeTrue())

				_, ok, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
				Expect(err).ShouldNot(HaveOccurred())
				Expect(ok).To(BeFalse())

				ids, err := dataStore.LoadInstanceIDs(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(ids).To(BeEmpty())
			})
		})
	})

	Describe("type Handle", func() {
		var h Handle

		BeforeEach(func() {
			var err error
			h, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())
		})

		Describe("func Fire()", func() {
			It("journals the event and merges its ingredients", func() {
				err := h.Fire(ctx, process.SensoryEvent{
					Name: "OrderPlaced",
					Ingredients: map[string]string{
						"orderId": "42",
						"items":   "cake",
					},
				})
				Expect(err).ShouldNot(HaveOccurred())

				s, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(s.Version).To(BeEquivalentTo(2))
				Expect(s.FiredEvents).To(Equal([]string{"OrderPlaced"}))
				Expect(s.Ingredients).To(Equal(map[string]string{
					"orderId": "42",
					"items":   "cake",
				}))
			})

			It("returns an error if the event is not accepted by the blueprint", func() {
				err := h.Fire(ctx, process.SensoryEvent{Name: "Unknown"})
				Expect(err).To(Equal(process.UnknownEventError{
					InstanceID: "order-42",
					Name:       "Unknown",
				}))
				Expect(index.IsLive("order-42")).To(BeTrue())
			})

			It("returns an error if the event is malformed", func() {
				err := h.Fire(ctx, process.SensoryEvent{})
				Expect(err).To(MatchError("sensory event name must not be empty"))
			})

			It("evicts the instance if the event can not be journaled", func() {
				dataStore.PersistFunc = func(context.Context, persistence.Batch) error {
					return errors.New("<error>")
				}

				err := h.Fire(ctx, process.SensoryEvent{Name: "OrderPlaced"})
				Expect(err).To(MatchError("<error>"))
				Expect(index.IsLive("order-42")).To(BeFalse())

				dataStore.PersistFunc = nil

				s, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(s.FiredEvents).To(BeEmpty())
			})
		})

		Describe("func Execute()", func() {
			BeforeEach(func() {
				err := h.Fire(ctx, process.SensoryEvent{
					Name: "OrderPlaced",
					Ingredients: map[string]string{
						"orderId": "42",
						"items":   "cake",
					},
				})
				Expect(err).ShouldNot(HaveOccurred())
			})

			It("returns the output of the interaction", func() {
				out, err := h.Execute(ctx, "ReserveItems")
				Expect(err).ShouldNot(HaveOccurred())
				Expect(out).To(Equal(map[string]string{
					"reservation": "reserved:cake",
				}))
			})

			It("journals the output as ingredients of the instance", func() {
				_, err := h.Execute(ctx, "ShipItems")
				Expect(err).ShouldNot(HaveOccurred())

				s, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(s.Interactions).To(Equal([]string{"ShipItems"}))
				Expect(s.Ingredients).To(HaveKeyWithValue("trackingNumber", "TRACK-42"))
			})

			It("returns an error if the interaction is not declared by the blueprint", func() {
				_, err := h.Execute(ctx, "Unknown")
				Expect(err).To(Equal(interaction.UnknownInteractionError{Name: "Unknown"}))
			})

			It("does not journal anything if the interaction fails", func() {
				index.Interactions, _ = interaction.NewRegistry(
					interaction.Implementation{
						Name: "ReserveItems",
						Capability: interaction.Func(
							func(context.Context, string, map[string]string) (map[string]string, error) {
								return nil, errors.New("<error>")
							},
						),
					},
					interaction.Implementation{
						Name: "ShipItems",
						Capability: interaction.Func(
							func(context.Context, string, map[string]string) (map[string]string, error) {
								return nil, nil
							},
						),
					},
				)

				// Rebuild the instance so that the new capabilities are
				// resolved.
				_, err := index.Passivate(ctx, func(string) bool { return true })
				Expect(err).ShouldNot(HaveOccurred())

				_, err = h.Execute(ctx, "ReserveItems")
				Expect(err).To(MatchError("<error>"))

				s, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(s.Version).To(BeEquivalentTo(2))
			})
		})

		Describe("func Snapshot()", func() {
			It("omits filtered ingredients", func() {
				index.FilteredIngredientNames = []string{"items"}

				err := h.Fire(ctx, process.SensoryEvent{
					Name: "OrderPlaced",
					Ingredients: map[string]string{
						"orderId": "42",
						"items":   "cake",
					},
				})
				Expect(err).ShouldNot(HaveOccurred())

				s, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(s.IngredientNames()).To(Equal([]string{"orderId"}))
			})

			It("rehydrates a passivated instance from the journal", func() {
				err := h.Fire(ctx, process.SensoryEvent{
					Name:        "OrderPlaced",
					Ingredients: map[string]string{"orderId": "42"},
				})
				Expect(err).ShouldNot(HaveOccurred())

				before, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())

				n, err := index.Passivate(ctx, func(id string) bool { return id == "order-42" })
				Expect(err).ShouldNot(HaveOccurred())
				Expect(n).To(Equal(1))
				Expect(index.IsLive("order-42")).To(BeFalse())

				after, err := h.Snapshot(ctx)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(after).To(EqualX(before))
				Expect(index.IsLive("order-42")).To(BeTrue())
			})

			It("returns an error if the instance has been deleted", func() {
				err := index.Delete(ctx, "order-42")
				Expect(err).ShouldNot(HaveOccurred())

				_, err = h.Snapshot(ctx)
				Expect(err).To(Equal(InstanceDeletedError{InstanceID: "order-42"}))
			})
		})
	})

	Describe("func Delete()", func() {
		BeforeEach(func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("tombstones the instance", func() {
			err := index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			md, ok, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(md.IsDeleted).To(BeTrue())
			Expect(index.IsLive("order-42")).To(BeFalse())
		})

		It("is idempotent", func() {
			err := index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			err = index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("deletes an instance that is not in memory", func() {
			_, err := index.Passivate(ctx, func(string) bool { return true })
			Expect(err).ShouldNot(HaveOccurred())

			err = index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			md, _, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(md.IsDeleted).To(BeTrue())
		})

		It("returns an error if the instance was never created", func() {
			err := index.Delete(ctx, "order-99")
			Expect(err).To(Equal(UnknownInstanceError{InstanceID: "order-99"}))
		})
	})

	Describe("func ListAll()", func() {
		It("returns the metadata of each instance, ordered by ID", func() {
			for _, id := range []string{"order-3", "order-1", "order-2"} {
				_, err := index.GetOrCreate(ctx, id, orderID)
				Expect(err).ShouldNot(HaveOccurred())
			}

			result, err := index.ListAll(ctx, time.Second)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result).To(HaveLen(3))
			Expect(result[0].InstanceID).To(Equal("order-1"))
			Expect(result[1].InstanceID).To(Equal("order-2"))
			Expect(result[2].InstanceID).To(Equal("order-3"))
			Expect(result[0].BlueprintID).To(Equal(orderID))
		})

		It("excludes deleted instances", func() {
			_, err := index.GetOrCreate(ctx, "order-1", orderID)
			Expect(err).ShouldNot(HaveOccurred())
			_, err = index.GetOrCreate(ctx, "order-2", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			err = index.Delete(ctx, "order-1")
			Expect(err).ShouldNot(HaveOccurred())

			result, err := index.ListAll(ctx, time.Second)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result).To(HaveLen(1))
			Expect(result[0].InstanceID).To(Equal("order-2"))
		})

		It("returns an empty result if there are no instances", func() {
			result, err := index.ListAll(ctx, time.Second)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result).To(BeEmpty())
		})

		It("returns a QueryTimeoutError if the query does not complete in time", func() {
			dataStore.LoadInstanceIDsFunc = func(ctx context.Context) ([]string, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			_, err := index.ListAll(ctx, 10*time.Millisecond)
			Expect(err).To(Equal(QueryTimeoutError{Timeout: 10 * time.Millisecond}))
			Expect(IsTransient(err)).To(BeTrue())
		})
	})

	When("the journal of an instance can not be replayed", func() {
		BeforeEach(func() {
			err := dataStore.Persist(
				ctx,
				persistence.Batch{
					persistence.SaveInstanceMetadata{
						Metadata: persistence.InstanceMetadata{
							InstanceID:  "order-42",
							BlueprintID: orderID,
							CreatedAt:   now(),
						},
					},
					persistence.AppendEvent{
						Event: persistence.Event{
							InstanceID: "order-42",
							Packet: marshalkit.Packet{
								MediaType: "application/json; type=Garbage",
								Data:      []byte("{}"),
							},
						},
					},
				},
			)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("quarantines the instance", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)

			var failure RecoveryFailedError
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.InstanceID).To(Equal("order-42"))

			dataStore.LoadEventsFunc = func(context.Context, string) (persistence.EventResult, error) {
				Fail("unexpected call")
				return nil, nil
			}

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(Equal(failure))
		})

		It("allows the failure to be cleared", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(BeAssignableToTypeOf(RecoveryFailedError{}))

			Expect(index.ClearRecoveryFailure("order-42")).To(BeTrue())
			Expect(index.ClearRecoveryFailure("order-42")).To(BeFalse())
		})

		It("allows the instance to be deleted", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(HaveOccurred())

			err = index.Delete(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).To(Equal(InstanceDeletedError{InstanceID: "order-42"}))
		})
	})

	Describe("func Run()", func() {
		var (
			runCtx context.Context
			result chan error
		)

		BeforeEach(func() {
			index.Retention = RetentionPolicy{
				CheckInterval: 5 * time.Millisecond,
				IdleTimeout:   time.Minute,
			}

			var cancel context.CancelFunc
			runCtx, cancel = context.WithCancel(ctx)

			result = make(chan error, 1)
			DeferCleanup(func() {
				cancel()
				Expect(<-result).To(Equal(context.Canceled))
			})
		})

		run := func() {
			go func() {
				result <- index.Run(runCtx)
			}()
		}

		It("passivates idle instances", func() {
			_, err := index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			run()
			advance(2 * time.Minute)

			Eventually(func() bool {
				return index.IsLive("order-42")
			}).Should(BeFalse())
		})

		It("deletes instances once their retention period elapses", func() {
			expiringID, err := blueprints.Register(ctx, fixtures.ExpiringBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "expiring-1", expiringID)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			run()

			Consistently(func() bool {
				md, _, _ := dataStore.LoadInstanceMetadata(ctx, "expiring-1")
				return md.IsDeleted
			}, 50*time.Millisecond).Should(BeFalse())

			advance(2 * time.Hour)

			Eventually(func() bool {
				md, _, _ := dataStore.LoadInstanceMetadata(ctx, "expiring-1")
				return md.IsDeleted
			}).Should(BeTrue())

			md, _, err := dataStore.LoadInstanceMetadata(ctx, "order-42")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(md.IsDeleted).To(BeFalse())
		})

		It("keeps running if instance metadata can not be loaded", func() {
			expiringID, err := blueprints.Register(ctx, fixtures.ExpiringBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "expiring-1", expiringID)
			Expect(err).ShouldNot(HaveOccurred())

			var unavailable atomic.Bool
			unavailable.Store(true)

			dataStore.LoadInstanceMetadataFunc = func(
				ctx context.Context,
				id string,
			) (persistence.InstanceMetadata, bool, error) {
				if unavailable.Load() {
					return persistence.InstanceMetadata{}, false, errors.New("<error>")
				}
				return dataStore.DataStore.LoadInstanceMetadata(ctx, id)
			}

			run()
			advance(2 * time.Hour)

			Consistently(result, 200*time.Millisecond).ShouldNot(Receive())

			Expect(logger.Messages()).To(ContainElement(
				WithTransform(
					func(m logging.BufferedLogMessage) string { return m.Message },
					ContainSubstring("unable to load the metadata of instance expiring-1"),
				),
			))

			unavailable.Store(false)

			Eventually(func() bool {
				md, _, _ := dataStore.LoadInstanceMetadata(ctx, "expiring-1")
				return md.IsDeleted
			}).Should(BeTrue())
		})

		It("reopens the instance ID feed if it fails", func() {
			expiringID, err := blueprints.Register(ctx, fixtures.ExpiringBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "expiring-1", expiringID)
			Expect(err).ShouldNot(HaveOccurred())

			var attempts atomic.Int32
			dataStore.OpenInstanceIDStreamFunc = func(
				ctx context.Context,
				offset uint64,
			) (persistence.InstanceIDCursor, error) {
				if attempts.Add(1) < 3 {
					return nil, errors.New("<error>")
				}
				return dataStore.DataStore.OpenInstanceIDStream(ctx, offset)
			}

			run()
			advance(2 * time.Hour)

			Eventually(func() bool {
				md, _, _ := dataStore.LoadInstanceMetadata(ctx, "expiring-1")
				return md.IsDeleted
			}).Should(BeTrue())

			Expect(attempts.Load()).To(BeNumerically(">=", 3))
			Expect(result).NotTo(Receive())
		})

		It("does not delete instances that this node does not own", func() {
			expiringID, err := blueprints.Register(ctx, fixtures.ExpiringBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = index.GetOrCreate(ctx, "expiring-1", expiringID)
			Expect(err).ShouldNot(HaveOccurred())

			guard.OwnsFunc = func(string) bool { return false }

			run()
			advance(2 * time.Hour)

			Consistently(func() bool {
				md, _, _ := dataStore.LoadInstanceMetadata(ctx, "expiring-1")
				return md.IsDeleted
			}, 50*time.Millisecond).Should(BeFalse())
		})
	})
})
