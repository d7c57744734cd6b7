package process

import (
	"fmt"
	"sort"
)

// Instance is the in-memory state of a process instance, rebuilt by applying
// its journaled events in order.
type Instance struct {
	ID          string
	BlueprintID string

	// Version is the number of events applied so far. It is also the sequence
	// number of the next event to be journaled.
	Version uint64

	firedEvents  []string
	interactions []string
	ingredients  map[string]string
}

// Apply applies a journaled event to the instance.
//
// It returns an error if ev is not an event type from this package, or if it
// is not consistent with the instance's history.
func (in *Instance) Apply(ev interface{}) error {
	switch ev := ev.(type) {
	case InstanceCreated:
		if in.Version != 0 {
			return fmt.Errorf("instance %s was created more than once", in.ID)
		}

		if ev.InstanceID != in.ID {
			return fmt.Errorf(
				"journal of instance %s begins with the creation of instance %s",
				in.ID,
				ev.InstanceID,
			)
		}

		in.BlueprintID = ev.BlueprintID

	case EventFired:
		if err := in.checkCreated(); err != nil {
			return err
		}

		in.firedEvents = append(in.firedEvents, ev.Name)
		in.merge(ev.Ingredients)

	case InteractionExecuted:
		if err := in.checkCreated(); err != nil {
			return err
		}

		in.interactions = append(in.interactions, ev.Interaction)
		in.merge(ev.Output)

	default:
		return fmt.Errorf("can not apply %T to instance %s", ev, in.ID)
	}

	in.Version++

	return nil
}

// Ingredients returns a copy of the instance's current ingredients.
func (in *Instance) Ingredients() map[string]string {
	result := make(map[string]string, len(in.ingredients))
	for k, v := range in.ingredients {
		result[k] = v
	}
	return result
}

// Snapshot returns a point-in-time view of the instance.
//
// Ingredients with names in filtered are omitted.
func (in *Instance) Snapshot(filtered []string) Snapshot {
	s := Snapshot{
		InstanceID:   in.ID,
		BlueprintID:  in.BlueprintID,
		Version:      in.Version,
		FiredEvents:  append([]string(nil), in.firedEvents...),
		Interactions: append([]string(nil), in.interactions...),
		Ingredients:  in.Ingredients(),
	}

	for _, n := range filtered {
		delete(s.Ingredients, n)
	}

	return s
}

func (in *Instance) checkCreated() error {
	if in.Version == 0 {
		return fmt.Errorf("journal of instance %s does not begin with its creation", in.ID)
	}

	return nil
}

func (in *Instance) merge(ingredients map[string]string) {
	if len(ingredients) == 0 {
		return
	}

	if in.ingredients == nil {
		in.ingredients = map[string]string{}
	}

	for k, v := range ingredients {
		in.ingredients[k] = v
	}
}

// Snapshot is a point-in-time view of a process instance.
type Snapshot struct {
	InstanceID   string            `cbor:"1,keyasint" json:"instance_id"`
	BlueprintID  string            `cbor:"2,keyasint" json:"blueprint_id"`
	Version      uint64            `cbor:"3,keyasint" json:"version"`
	FiredEvents  []string          `cbor:"4,keyasint" json:"fired_events,omitempty"`
	Interactions []string          `cbor:"5,keyasint" json:"interactions,omitempty"`
	Ingredients  map[string]string `cbor:"6,keyasint" json:"ingredients,omitempty"`
}

// IngredientNames returns the sorted names of the ingredients in the snapshot.
func (s Snapshot) IngredientNames() []string {
	names := make([]string, 0, len(s.Ingredients))
	for n := range s.Ingredients {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
