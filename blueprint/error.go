package blueprint

import "fmt"

// UnknownBlueprintError indicates that a blueprint ID does not refer to any
// registered blueprint.
type UnknownBlueprintError struct {
	ID string
}

func (e UnknownBlueprintError) Error() string {
	return fmt.Sprintf("blueprint %s is not registered", e.ID)
}
