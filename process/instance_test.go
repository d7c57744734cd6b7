package process_test

import (
	. "github.com/bakerykit/bakery/process"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Instance", func() {
	var instance *Instance

	BeforeEach(func() {
		instance = &Instance{ID: "order-42"}

		err := instance.Apply(InstanceCreated{
			InstanceID:  "order-42",
			BlueprintID: "<blueprint>",
		})
		Expect(err).ShouldNot(HaveOccurred())
	})

	Describe("func Apply()", func() {
		It("binds the instance to its blueprint", func() {
			Expect(instance.BlueprintID).To(Equal("<blueprint>"))
			Expect(instance.Version).To(BeEquivalentTo(1))
		})

		It("merges ingredients from fired events and interactions", func() {
			Expect(instance.Apply(EventFired{
				Name:        "OrderPlaced",
				Ingredients: map[string]string{"orderId": "42", "customer": "<customer>"},
			})).To(Succeed())

			Expect(instance.Apply(InteractionExecuted{
				Interaction: "ShipOrder",
				Output:      map[string]string{"trackingId": "<tracking>", "customer": "<updated>"},
			})).To(Succeed())

			Expect(instance.Version).To(BeEquivalentTo(3))
			Expect(instance.Ingredients()).To(Equal(map[string]string{
				"orderId":    "42",
				"customer":   "<updated>",
				"trackingId": "<tracking>",
			}))
		})

		It("returns an error if the instance is created twice", func() {
			err := instance.Apply(InstanceCreated{InstanceID: "order-42"})
			Expect(err).To(MatchError("instance order-42 was created more than once"))
		})

		It("returns an error if the journal does not begin with the creation event", func() {
			in := &Instance{ID: "order-42"}

			err := in.Apply(EventFired{Name: "OrderPlaced"})
			Expect(err).To(MatchError("journal of instance order-42 does not begin with its creation"))
		})

		It("returns an error if the creation event is for a different instance", func() {
			in := &Instance{ID: "order-42"}

			err := in.Apply(InstanceCreated{InstanceID: "order-43"})
			Expect(err).To(MatchError("journal of instance order-42 begins with the creation of instance order-43"))
		})

		It("returns an error for an unrecognized event type", func() {
			err := instance.Apply("<unknown>")
			Expect(err).To(MatchError("can not apply string to instance order-42"))
		})
	})

	Describe("func Snapshot()", func() {
		BeforeEach(func() {
			Expect(instance.Apply(EventFired{
				Name:        "OrderPlaced",
				Ingredients: map[string]string{"orderId": "42", "creditCard": "<secret>"},
			})).To(Succeed())
		})

		It("reports the instance's history", func() {
			s := instance.Snapshot(nil)
			Expect(s).To(Equal(Snapshot{
				InstanceID:  "order-42",
				BlueprintID: "<blueprint>",
				Version:     2,
				FiredEvents: []string{"OrderPlaced"},
				Ingredients: map[string]string{"orderId": "42", "creditCard": "<secret>"},
			}))
		})

		It("omits filtered ingredients", func() {
			s := instance.Snapshot([]string{"creditCard"})
			Expect(s.IngredientNames()).To(Equal([]string{"orderId"}))
		})

		It("is not affected by later changes to the instance", func() {
			s := instance.Snapshot(nil)

			Expect(instance.Apply(EventFired{
				Name:        "PaymentReceived",
				Ingredients: map[string]string{"orderId": "<changed>"},
			})).To(Succeed())

			Expect(s.FiredEvents).To(Equal([]string{"OrderPlaced"}))
			Expect(s.Ingredients).To(HaveKeyWithValue("orderId", "42"))
		})
	})
})
