package cluster_test

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	. "github.com/bakerykit/bakery/cluster"
	"github.com/bakerykit/bakery/fixtures"
	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/memory"
	"github.com/bakerykit/bakery/process"
	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Node", func() {
	var (
		ctx          context.Context
		dataStore    persistence.DataStore
		blueprintID  string
		nodeA, nodeB *Node
		ids          []string // one instance ID per shard
	)

	newNode := func(lis net.Listener, seeds ...string) *Node {
		blueprints := &blueprint.Registry{
			DataStore: dataStore,
			Logger:    logging.DiscardLogger{},
		}

		interactions, err := interaction.NewRegistry(fixtures.OrderInteractions()...)
		Expect(err).ShouldNot(HaveOccurred())

		return &Node{
			Listener:          lis,
			Seeds:             seeds,
			ShardCount:        4,
			LeaseDuration:     300 * time.Millisecond,
			HeartbeatInterval: 20 * time.Millisecond,
			FailureTimeout:    200 * time.Millisecond,
			Local: &index.Local{
				DataStore:    dataStore,
				Blueprints:   blueprints,
				Interactions: interactions,
				Logger:       logging.DiscardLogger{},
			},
			Logger: logging.DiscardLogger{},
		}
	}

	run := func(n *Node) context.CancelFunc {
		runCtx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)

		go func() {
			result <- n.Run(runCtx)
		}()

		Eventually(n.Ready(), 3*time.Second).Should(BeClosed())

		return func() {
			cancel()
			Eventually(result, 3*time.Second).Should(Receive(Equal(context.Canceled)))
		}
	}

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		var err error
		dataStore, err = (&memory.Provider{}).Open(ctx, "<journal>")
		Expect(err).ShouldNot(HaveOccurred())
		DeferCleanup(func() { dataStore.Close() })

		blueprintID, err = (&blueprint.Registry{
			DataStore: dataStore,
			Logger:    logging.DiscardLogger{},
		}).Register(ctx, fixtures.OrderBlueprint)
		Expect(err).ShouldNot(HaveOccurred())

		lisA, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ShouldNot(HaveOccurred())

		lisB, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ShouldNot(HaveOccurred())

		seed := lisA.Addr().String()

		nodeA = newNode(lisA, seed)
		nodeB = newNode(lisB, seed)

		DeferCleanup(run(nodeA))
		DeferCleanup(run(nodeB))

		Eventually(func() []Member {
			return nodeA.Membership().Members()
		}, 3*time.Second).Should(HaveLen(2))

		// Wait for the shards to be divided between the two nodes.
		parts := Partition(4, nodeA.Membership().Members())
		Eventually(nodeA.Leaser().Held, 3*time.Second).Should(Equal(append([]uint32{}, parts[seed]...)))
		Eventually(nodeB.Leaser().Held, 3*time.Second).Should(Equal(append([]uint32{}, parts[lisB.Addr().String()]...)))

		ids = nil
		for shard := uint32(0); shard < 4; shard++ {
			for i := 0; ; i++ {
				id := fmt.Sprintf("order-%d", i)
				if ShardOf(id, 4) == shard {
					ids = append(ids, id)
					break
				}
			}
		}
	})

	owner := func(id string) *Node {
		if nodeA.Leaser().Owns(id) {
			return nodeA
		}
		return nodeB
	}

	other := func(n *Node) *Node {
		if n == nodeA {
			return nodeB
		}
		return nodeA
	}

	It("never assigns a shard to both nodes", func() {
		Consistently(func() []uint32 {
			var both []uint32
			for _, shard := range nodeA.Leaser().Held() {
				for _, s := range nodeB.Leaser().Held() {
					if s == shard {
						both = append(both, shard)
					}
				}
			}
			return both
		}, 200*time.Millisecond).Should(BeEmpty())
	})

	It("creates each instance on the node that owns its shard", func() {
		for _, id := range ids {
			// Always ask the node that does NOT own the instance.
			o := owner(id)
			h, err := other(o).Index().GetOrCreate(ctx, id, blueprintID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.InstanceID()).To(Equal(id))

			Expect(o.Local.IsLive(id)).To(BeTrue())
			Expect(other(o).Local.IsLive(id)).To(BeFalse())
		}
	})

	It("routes handle operations to the owning node", func() {
		id := ids[0]
		o := owner(id)

		h, err := other(o).Index().GetOrCreate(ctx, id, blueprintID)
		Expect(err).ShouldNot(HaveOccurred())

		err = h.Fire(ctx, process.SensoryEvent{
			Name: "OrderPlaced",
			Ingredients: map[string]string{
				"orderId": "42",
				"items":   "cake",
			},
		})
		Expect(err).ShouldNot(HaveOccurred())

		out, err := h.Execute(ctx, "ReserveItems")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(out).To(Equal(map[string]string{"reservation": "reserved:cake"}))

		local, err := o.Index().GetOrCreate(ctx, id, blueprintID)
		Expect(err).ShouldNot(HaveOccurred())

		s, err := local.Snapshot(ctx)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(s.FiredEvents).To(Equal([]string{"OrderPlaced"}))
		Expect(s.Interactions).To(Equal([]string{"ReserveItems"}))
	})

	It("returns domain errors from the owning node", func() {
		id := ids[1]
		o := owner(id)

		_, err := other(o).Index().GetOrCreate(ctx, id, "<unknown>")
		Expect(err).To(Equal(blueprint.UnknownBlueprintError{ID: "<unknown>"}))

		h, err := other(o).Index().GetOrCreate(ctx, id, blueprintID)
		Expect(err).ShouldNot(HaveOccurred())

		err = h.Fire(ctx, process.SensoryEvent{Name: "Unknown"})
		Expect(err).To(Equal(process.UnknownEventError{InstanceID: id, Name: "Unknown"}))

		err = other(o).Index().Delete(ctx, id)
		Expect(err).ShouldNot(HaveOccurred())

		_, err = other(o).Index().GetOrCreate(ctx, id, blueprintID)
		Expect(err).To(Equal(index.InstanceDeletedError{InstanceID: id}))
	})

	It("lists the instances on every node", func() {
		for _, id := range ids {
			_, err := nodeA.Index().GetOrCreate(ctx, id, blueprintID)
			Expect(err).ShouldNot(HaveOccurred())
		}

		err := nodeA.Index().Delete(ctx, ids[3])
		Expect(err).ShouldNot(HaveOccurred())

		for _, n := range []*Node{nodeA, nodeB} {
			result, err := n.Index().ListAll(ctx, 3*time.Second)
			Expect(err).ShouldNot(HaveOccurred())

			var listed []string
			for _, md := range result {
				listed = append(listed, md.InstanceID)
			}

			Expect(listed).To(ConsistOf(ids[0], ids[1], ids[2]))
		}
	})

	It("fails with a QueryTimeoutError if the listing does not complete in time", func() {
		_, err := nodeB.Index().ListAll(ctx, time.Nanosecond)
		Expect(err).To(Equal(index.QueryTimeoutError{Timeout: time.Nanosecond}))
	})
})
