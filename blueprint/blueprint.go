// Package blueprint defines the immutable process blueprints (recipes) that
// process instances are bound to, and the registry that stores them.
package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Blueprint is a compiled, immutable process definition.
//
// A blueprint's identity is derived from its content. Changing any part of a
// blueprint produces a new blueprint with a different ID.
type Blueprint struct {
	// Name is the human-readable name of the blueprint, such as "Order-v1".
	Name string `cbor:"1,keyasint" json:"name"`

	// Events is the set of sensory events that may be fired on instances of
	// the blueprint.
	Events []string `cbor:"2,keyasint" json:"events,omitempty"`

	// Interactions is the set of interactions that instances of the blueprint
	// may execute. Each one must be resolvable in the interaction registry.
	Interactions []string `cbor:"3,keyasint" json:"interactions,omitempty"`

	// RetentionPeriod is how long an instance is kept after it is created. A
	// zero value means instances are kept until they are explicitly deleted.
	RetentionPeriod time.Duration `cbor:"4,keyasint" json:"retention_period,omitempty"`

	// Definition is the opaque compiled recipe.
	Definition []byte `cbor:"5,keyasint" json:"definition,omitempty"`
}

// ID returns the content-derived identifier of the blueprint.
//
// It is the hex-encoded SHA-256 digest of the blueprint's deterministic CBOR
// encoding. Empty and nil slices are treated as equivalent.
func (bp Blueprint) ID() string {
	if len(bp.Events) == 0 {
		bp.Events = nil
	}

	if len(bp.Interactions) == 0 {
		bp.Interactions = nil
	}

	if len(bp.Definition) == 0 {
		bp.Definition = nil
	}

	data, err := canonical.Marshal(bp)
	if err != nil {
		panic(err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate returns an error if the blueprint is malformed.
func (bp Blueprint) Validate() error {
	if bp.Name == "" {
		return errors.New("blueprint name must not be empty")
	}

	if bp.RetentionPeriod < 0 {
		return errors.New("blueprint retention period must not be negative")
	}

	return nil
}

// HasEvent returns true if the blueprint declares the named sensory event.
func (bp Blueprint) HasEvent(name string) bool {
	return contains(bp.Events, name)
}

// HasInteraction returns true if the blueprint declares the named
// interaction.
func (bp Blueprint) HasInteraction(name string) bool {
	return contains(bp.Interactions, name)
}

func contains(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}

	return false
}

var canonical cbor.EncMode

func init() {
	var err error
	canonical, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}
