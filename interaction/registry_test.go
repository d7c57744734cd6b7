package interaction_test

import (
	"context"

	. "github.com/bakerykit/bakery/interaction"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("type Registry", func() {
	ship := Func(func(
		_ context.Context,
		id string,
		_ map[string]string,
	) (map[string]string, error) {
		return map[string]string{"shipped": id}, nil
	})

	Describe("func NewRegistry()", func() {
		It("returns an error if an interaction is implemented more than once", func() {
			_, err := NewRegistry(
				Implementation{Name: "ShipOrder", Capability: ship},
				Implementation{Name: "ShipOrder", Capability: ship},
			)
			Expect(err).To(MatchError("the 'ShipOrder' interaction is implemented more than once"))
		})

		It("returns an error if an implementation has no name", func() {
			_, err := NewRegistry(Implementation{Capability: ship})
			Expect(err).To(MatchError("interaction name must not be empty"))
		})

		It("returns an error if an implementation has no capability", func() {
			_, err := NewRegistry(Implementation{Name: "ShipOrder"})
			Expect(err).To(MatchError("the 'ShipOrder' interaction has no capability"))
		})
	})

	Describe("func Resolve()", func() {
		It("returns the capability for a registered interaction", func() {
			r, err := NewRegistry(Implementation{Name: "ShipOrder", Capability: ship})
			Expect(err).ShouldNot(HaveOccurred())

			c, err := r.Resolve("ShipOrder")
			Expect(err).ShouldNot(HaveOccurred())

			out, err := c.Execute(context.Background(), "<instance>", nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(out).To(Equal(map[string]string{"shipped": "<instance>"}))
		})

		It("returns an UnknownInteractionError for an unregistered interaction", func() {
			r, err := NewRegistry()
			Expect(err).ShouldNot(HaveOccurred())

			_, err = r.Resolve("ShipOrder")
			Expect(err).To(Equal(UnknownInteractionError{Name: "ShipOrder"}))
			Expect(err).To(MatchError("the 'ShipOrder' interaction is not registered"))
		})

		It("can be called on a nil registry", func() {
			var r *Registry

			_, err := r.Resolve("ShipOrder")
			Expect(err).To(Equal(UnknownInteractionError{Name: "ShipOrder"}))
		})
	})

	Describe("func ResolveAll()", func() {
		It("fails if any interaction is unknown", func() {
			r, err := NewRegistry(Implementation{Name: "ShipOrder", Capability: ship})
			Expect(err).ShouldNot(HaveOccurred())

			_, err = r.ResolveAll([]string{"ShipOrder", "ReserveItems"})
			Expect(err).To(Equal(UnknownInteractionError{Name: "ReserveItems"}))
		})

		It("returns a capability for each name", func() {
			r, err := NewRegistry(Implementation{Name: "ShipOrder", Capability: ship})
			Expect(err).ShouldNot(HaveOccurred())

			caps, err := r.ResolveAll([]string{"ShipOrder"})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(caps).To(HaveKey("ShipOrder"))
		})
	})

	Describe("func Names()", func() {
		It("returns the sorted interaction names", func() {
			r, err := NewRegistry(
				Implementation{Name: "ShipOrder", Capability: ship},
				Implementation{Name: "ReserveItems", Capability: ship},
			)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(r.Names()).To(Equal([]string{"ReserveItems", "ShipOrder"}))
		})
	})
})
