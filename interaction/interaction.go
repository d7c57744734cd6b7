// Package interaction provides the registry of side-effecting interactions
// that process instances execute.
package interaction

import (
	"context"
)

// Capability is the ability to execute a named interaction.
type Capability interface {
	// Execute performs the interaction on behalf of a process instance.
	//
	// input is the instance's current set of ingredients. The returned map
	// contains the ingredients produced by the interaction.
	Execute(
		ctx context.Context,
		instanceID string,
		input map[string]string,
	) (map[string]string, error)
}

// Func is an adaptor that allows a function to be used as a Capability.
type Func func(
	ctx context.Context,
	instanceID string,
	input map[string]string,
) (map[string]string, error)

// Execute calls fn(ctx, instanceID, input).
func (fn Func) Execute(
	ctx context.Context,
	instanceID string,
	input map[string]string,
) (map[string]string, error) {
	return fn(ctx, instanceID, input)
}

// Implementation binds a Capability to an interaction name.
type Implementation struct {
	Name       string
	Capability Capability
}
