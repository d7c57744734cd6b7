package interaction

import (
	"errors"
	"fmt"
	"sort"
)

// Registry maps interaction names to their capabilities.
//
// It is immutable once constructed, and hence safe for concurrent use.
type Registry struct {
	capabilities map[string]Capability
}

// NewRegistry returns a registry containing the given implementations.
//
// It returns an error if two implementations share the same name, or if any
// implementation is incomplete.
func NewRegistry(impls ...Implementation) (*Registry, error) {
	r := &Registry{
		capabilities: make(map[string]Capability, len(impls)),
	}

	for _, impl := range impls {
		if impl.Name == "" {
			return nil, errors.New("interaction name must not be empty")
		}

		if impl.Capability == nil {
			return nil, fmt.Errorf("the '%s' interaction has no capability", impl.Name)
		}

		if _, ok := r.capabilities[impl.Name]; ok {
			return nil, fmt.Errorf("the '%s' interaction is implemented more than once", impl.Name)
		}

		r.capabilities[impl.Name] = impl.Capability
	}

	return r, nil
}

// Resolve returns the capability for the named interaction.
//
// It returns an UnknownInteractionError if there is no such interaction. It is
// safe to call Resolve() on a nil registry.
func (r *Registry) Resolve(name string) (Capability, error) {
	if r != nil {
		if c, ok := r.capabilities[name]; ok {
			return c, nil
		}
	}

	return nil, UnknownInteractionError{Name: name}
}

// ResolveAll resolves each of the named interactions.
func (r *Registry) ResolveAll(names []string) (map[string]Capability, error) {
	result := make(map[string]Capability, len(names))

	for _, n := range names {
		c, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}

		result[n] = c
	}

	return result, nil
}

// Names returns the names of the registered interactions, in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}

	names := make([]string, 0, len(r.capabilities))
	for n := range r.capabilities {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// UnknownInteractionError indicates that an interaction name can not be
// resolved.
type UnknownInteractionError struct {
	Name string
}

func (e UnknownInteractionError) Error() string {
	return fmt.Sprintf("the '%s' interaction is not registered", e.Name)
}
