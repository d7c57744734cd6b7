package process

import (
	"errors"
	"fmt"
)

// SensoryEvent is an external stimulus fired on a process instance.
type SensoryEvent struct {
	Name        string            `cbor:"1,keyasint"`
	Ingredients map[string]string `cbor:"2,keyasint"`
}

// Validate returns an error if the event is malformed.
func (ev SensoryEvent) Validate() error {
	if ev.Name == "" {
		return errors.New("sensory event name must not be empty")
	}

	return nil
}

// UnknownEventError indicates that a sensory event is not declared by the
// blueprint of the instance it was fired on.
type UnknownEventError struct {
	InstanceID string
	Name       string
}

func (e UnknownEventError) Error() string {
	return fmt.Sprintf(
		"the '%s' event is not accepted by instance %s",
		e.Name,
		e.InstanceID,
	)
}
