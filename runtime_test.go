package bakery_test

import (
	"context"
	"errors"
	"net"
	"time"

	. "github.com/bakerykit/bakery"
	"github.com/bakerykit/bakery/fixtures"
	"github.com/bakerykit/bakery/index"
	. "github.com/bakerykit/bakery/internal/x/gomegax"
	"github.com/bakerykit/bakery/persistence"
	"github.com/bakerykit/bakery/persistence/memory"
	"github.com/bakerykit/bakery/process"
	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("func Start()", func() {
	var (
		ctx      context.Context
		provider *memory.Provider
		options  []RuntimeOption
	)

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)

		provider = &memory.Provider{}

		options = []RuntimeOption{
			WithPersistence(provider),
			WithInteractions(fixtures.OrderInteractions()...),
			WithLogger(logging.DiscardLogger{}),
		}
	})

	start := func(cfg Config, extra ...RuntimeOption) *Runtime {
		rt, err := Start(ctx, cfg, append(options, extra...)...)
		Expect(err).ShouldNot(HaveOccurred())
		return rt
	}

	// lifecycle exercises an instance from creation to deletion.
	lifecycle := func(rt *Runtime) {
		orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
		Expect(err).ShouldNot(HaveOccurred())

		h, err := rt.Index.GetOrCreate(ctx, "order-42", orderID)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(h.InstanceID()).To(Equal("order-42"))
		Expect(h.BlueprintID()).To(Equal(orderID))

		instances, err := rt.Index.ListAll(ctx, time.Second)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(instances).To(HaveLen(1))
		Expect(instances[0].InstanceID).To(Equal("order-42"))
		Expect(instances[0].BlueprintID).To(Equal(orderID))

		err = rt.Index.Delete(ctx, "order-42")
		Expect(err).ShouldNot(HaveOccurred())

		instances, err = rt.Index.ListAll(ctx, time.Second)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(instances).To(BeEmpty())

		_, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)
		Expect(err).To(Equal(index.InstanceDeletedError{InstanceID: "order-42"}))
	}

	When("the topology is local", func() {
		It("creates, lists and deletes instances", func() {
			rt := start(Config{Topology: LocalTopology})
			defer rt.Stop()

			lifecycle(rt)
		})

		It("restores instances from the journal when restarted", func() {
			rt := start(Config{})

			orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			h, err := rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			err = h.Fire(ctx, process.SensoryEvent{
				Name:        "OrderPlaced",
				Ingredients: map[string]string{"orderId": "42"},
			})
			Expect(err).ShouldNot(HaveOccurred())

			expect, err := h.Snapshot(ctx)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(rt.Stop()).To(Succeed())

			rt = start(Config{})
			defer rt.Stop()

			h, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			snapshot, err := h.Snapshot(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(snapshot).To(EqualX(expect))
		})

		It("omits filtered ingredients from snapshots", func() {
			rt := start(Config{FilteredIngredientNames: []string{"items"}})
			defer rt.Stop()

			orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			h, err := rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			err = h.Fire(ctx, process.SensoryEvent{
				Name: "OrderPlaced",
				Ingredients: map[string]string{
					"orderId": "42",
					"items":   "cake",
				},
			})
			Expect(err).ShouldNot(HaveOccurred())

			snapshot, err := h.Snapshot(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(snapshot.IngredientNames()).To(Equal([]string{"orderId"}))
		})

		It("registers metrics if a registerer is provided", func() {
			reg := prometheus.NewPedanticRegistry()

			rt := start(Config{}, WithMetrics(reg))
			defer rt.Stop()

			orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			n, err := testutil.GatherAndCount(reg, "bakery_index_instances_created_total")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("returns an error if two interactions share a name", func() {
			_, err := Start(
				ctx,
				Config{},
				append(options, WithInteractions(fixtures.OrderInteractions()...))...,
			)
			Expect(err).To(MatchError("the 'ReserveItems' interaction is implemented more than once"))
		})

		It("returns an error if the journal can not be opened", func() {
			ds, err := provider.Open(ctx, DefaultJournalName)
			Expect(err).ShouldNot(HaveOccurred())
			defer ds.Close()

			_, err = Start(ctx, Config{}, options...)
			Expect(err).To(MatchError(ContainSubstring("data store is locked")))
		})
	})

	When("encryption is enabled", func() {
		cfg := func(secret string) Config {
			return Config{
				Encryption: EncryptionConfig{
					Enabled: true,
					Secret:  secret,
				},
			}
		}

		It("restores instances when restarted with the same secret", func() {
			rt := start(cfg("<secret>"))

			orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(rt.Stop()).To(Succeed())

			rt = start(cfg("<secret>"))
			defer rt.Stop()

			h, err := rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = h.Snapshot(ctx)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("fails to recover instances when restarted with a different secret", func() {
			rt := start(cfg("<secret>"))

			orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(rt.Stop()).To(Succeed())

			rt = start(cfg("<wrong secret>"))
			defer rt.Stop()

			_, err = rt.Index.GetOrCreate(ctx, "order-42", orderID)

			var rerr index.RecoveryFailedError
			Expect(errors.As(err, &rerr)).To(BeTrue())
			Expect(rerr.InstanceID).To(Equal("order-42"))
		})
	})

	When("the topology is cluster-sharded", func() {
		var (
			listener net.Listener
			config   Config
		)

		BeforeEach(func() {
			var err error
			listener, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ShouldNot(HaveOccurred())

			addr := listener.Addr().String()

			config = Config{
				Topology:      ClusterShardedTopology,
				ShardCount:    4,
				SeedNodes:     []string{addr},
				ListenAddress: addr,
				LeaseDuration: Duration(1 * time.Second),
			}
		})

		It("creates, lists and deletes instances", func() {
			rt := start(config, WithListener(listener))
			defer rt.Stop()

			lifecycle(rt)
		})

		It("returns a ConfigError if there is no shared journal", func() {
			defer listener.Close()

			_, err := Start(
				ctx,
				config,
				WithListener(listener),
				WithLogger(logging.DiscardLogger{}),
			)
			Expect(err).To(Equal(ConfigError{
				Field:   "journal.address",
				Problem: "a cluster requires a shared journal",
			}))
		})

		It("returns an error if the seed nodes can not be reached", func() {
			unreachable, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ShouldNot(HaveOccurred())
			unreachable.Close()

			config.SeedNodes = []string{unreachable.Addr().String()}
			config.BootstrapTimeout = Duration(100 * time.Millisecond)

			_, err = Start(ctx, config, append(options, WithListener(listener))...)
			Expect(err).To(Equal(BootstrapTimeoutError{Timeout: 100 * time.Millisecond}))
			Expect(index.IsTransient(err)).To(BeTrue())
		})
	})
})

var _ = Describe("type ClusterDeployment", func() {
	Describe("func Provide()", func() {
		It("returns a JournalInitTimeoutError if the journal does not become available in time", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			d := &ClusterDeployment{
				SeedNodes:          []string{"127.0.0.1:7100"},
				JournalInitTimeout: 10 * time.Millisecond,
				Persistence: &fixtures.ProviderStub{
					OpenFunc: func(ctx context.Context, _ string) (persistence.DataStore, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					},
				},
			}

			_, err := d.Provide(ctx, Environment{})
			Expect(err).To(Equal(JournalInitTimeoutError{Timeout: 10 * time.Millisecond}))
			Expect(index.IsTransient(err)).To(BeTrue())
		})

		It("returns a ConfigError if there are no seed nodes", func() {
			d := &ClusterDeployment{}

			_, err := d.Provide(context.Background(), Environment{})
			Expect(err).To(BeAssignableToTypeOf(ConfigError{}))
		})
	})
})

var _ = Describe("func Inventory()", func() {
	It("lists the instances in the journal", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		provider := &memory.Provider{}

		rt, err := Start(
			ctx,
			Config{},
			WithPersistence(provider),
			WithInteractions(fixtures.OrderInteractions()...),
			WithLogger(logging.DiscardLogger{}),
		)
		Expect(err).ShouldNot(HaveOccurred())

		orderID, err := rt.Blueprints.Register(ctx, fixtures.OrderBlueprint)
		Expect(err).ShouldNot(HaveOccurred())

		for _, id := range []string{"order-2", "order-1", "order-3"} {
			_, err := rt.Index.GetOrCreate(ctx, id, orderID)
			Expect(err).ShouldNot(HaveOccurred())
		}

		Expect(rt.Index.Delete(ctx, "order-3")).To(Succeed())
		Expect(rt.Stop()).To(Succeed())

		instances, err := Inventory(ctx, Config{}, time.Second, WithPersistence(provider))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(instances).To(HaveLen(2))
		Expect(instances[0].InstanceID).To(Equal("order-1"))
		Expect(instances[1].InstanceID).To(Equal("order-2"))
	})

	It("returns a ConfigError if the configuration is invalid", func() {
		_, err := Inventory(context.Background(), Config{Topology: "mesh"}, time.Second)
		Expect(err).To(BeAssignableToTypeOf(ConfigError{}))
	})
})
