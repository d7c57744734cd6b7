package fixtures

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/interaction"
)

// OrderBlueprint is a blueprint for a simple web-shop order process.
var OrderBlueprint = blueprint.Blueprint{
	Name:         "Order-v1",
	Events:       []string{"OrderPlaced", "PaymentReceived"},
	Interactions: []string{"ReserveItems", "ShipItems"},
}

// ExpiringBlueprint is a blueprint whose instances are deleted an hour after
// they are created.
var ExpiringBlueprint = blueprint.Blueprint{
	Name:            "Expiring-v1",
	Events:          []string{"Touched"},
	RetentionPeriod: time.Hour,
}

// OrderInteractions returns the implementations of the interactions declared
// by OrderBlueprint.
func OrderInteractions() []interaction.Implementation {
	return []interaction.Implementation{
		{
			Name: "ReserveItems",
			Capability: interaction.Func(
				func(
					_ context.Context,
					_ string,
					in map[string]string,
				) (map[string]string, error) {
					return map[string]string{
						"reservation": "reserved:" + in["items"],
					}, nil
				},
			),
		},
		{
			Name: "ShipItems",
			Capability: interaction.Func(
				func(
					_ context.Context,
					_ string,
					in map[string]string,
				) (map[string]string, error) {
					return map[string]string{
						"trackingNumber": "TRACK-" + in["orderId"],
					}, nil
				},
			),
		},
	}
}
