package blueprint_test

import (
	"time"

	. "github.com/bakerykit/bakery/blueprint"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var order = Blueprint{
	Name:            "Order-v1",
	Events:          []string{"OrderPlaced", "PaymentReceived"},
	Interactions:    []string{"ReserveItems", "ShipOrder"},
	RetentionPeriod: 24 * time.Hour,
	Definition:      []byte("<definition>"),
}

var _ = Describe("type Blueprint", func() {
	Describe("func ID()", func() {
		It("returns a 64 character hex string", func() {
			Expect(order.ID()).To(MatchRegexp(`^[0-9a-f]{64}$`))
		})

		It("returns the same ID for equal blueprints", func() {
			clone := order
			clone.Events = append([]string(nil), order.Events...)

			Expect(clone.ID()).To(Equal(order.ID()))
		})

		It("treats empty and nil slices as equivalent", func() {
			a := Blueprint{Name: "<name>"}
			b := Blueprint{
				Name:         "<name>",
				Events:       []string{},
				Interactions: []string{},
				Definition:   []byte{},
			}

			Expect(a.ID()).To(Equal(b.ID()))
		})

		DescribeTable(
			"it returns a different ID when the content changes",
			func(change func(*Blueprint)) {
				changed := order
				change(&changed)

				Expect(changed.ID()).NotTo(Equal(order.ID()))
			},
			Entry("name", func(bp *Blueprint) { bp.Name = "Order-v2" }),
			Entry("events", func(bp *Blueprint) { bp.Events = []string{"OrderPlaced"} }),
			Entry("interactions", func(bp *Blueprint) { bp.Interactions = nil }),
			Entry("retention period", func(bp *Blueprint) { bp.RetentionPeriod = time.Hour }),
			Entry("definition", func(bp *Blueprint) { bp.Definition = []byte("<other>") }),
		)
	})

	Describe("func Validate()", func() {
		It("returns nil for a valid blueprint", func() {
			Expect(order.Validate()).To(Succeed())
		})

		It("returns an error if the name is empty", func() {
			bp := order
			bp.Name = ""

			Expect(bp.Validate()).To(MatchError("blueprint name must not be empty"))
		})

		It("returns an error if the retention period is negative", func() {
			bp := order
			bp.RetentionPeriod = -time.Second

			Expect(bp.Validate()).To(MatchError("blueprint retention period must not be negative"))
		})
	})

	Describe("func HasEvent()", func() {
		It("returns true only for declared events", func() {
			Expect(order.HasEvent("OrderPlaced")).To(BeTrue())
			Expect(order.HasEvent("<unknown>")).To(BeFalse())
		})
	})

	Describe("func HasInteraction()", func() {
		It("returns true only for declared interactions", func() {
			Expect(order.HasInteraction("ShipOrder")).To(BeTrue())
			Expect(order.HasInteraction("<unknown>")).To(BeFalse())
		})
	})
})
