package bakery

import (
	"fmt"
	"time"
)

// ConfigError indicates that the runtime configuration is invalid.
type ConfigError struct {
	// Field is the name of the offending configuration field, as it appears
	// in YAML.
	Field string

	// Problem describes what is wrong with the field.
	Problem string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Problem)
}

// JournalInitTimeoutError indicates that the journal did not become available
// within the configured timeout.
type JournalInitTimeoutError struct {
	Timeout time.Duration
}

func (e JournalInitTimeoutError) Error() string {
	return fmt.Sprintf("journal did not become available within %s", e.Timeout)
}

// IsTransient returns true. The journal may become available later.
func (e JournalInitTimeoutError) IsTransient() bool {
	return true
}

// BootstrapTimeoutError indicates that a cluster member could not join the
// cluster within the configured timeout.
type BootstrapTimeoutError struct {
	Timeout time.Duration
}

func (e BootstrapTimeoutError) Error() string {
	return fmt.Sprintf("unable to join the cluster within %s", e.Timeout)
}

// IsTransient returns true. The seed nodes may become reachable later.
func (e BootstrapTimeoutError) IsTransient() bool {
	return true
}
