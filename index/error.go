package index

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UnknownInstanceError indicates that an operation refers to an instance that
// was never created.
type UnknownInstanceError struct {
	InstanceID string
}

func (e UnknownInstanceError) Error() string {
	return fmt.Sprintf("instance %s does not exist", e.InstanceID)
}

// InstanceDeletedError indicates that an operation refers to an instance that
// has been deleted.
type InstanceDeletedError struct {
	InstanceID string
}

func (e InstanceDeletedError) Error() string {
	return fmt.Sprintf("instance %s has been deleted", e.InstanceID)
}

// BlueprintMismatchError indicates that an instance is already bound to a
// different blueprint than the one requested.
type BlueprintMismatchError struct {
	InstanceID string
	Existing   string
	Requested  string
}

func (e BlueprintMismatchError) Error() string {
	return fmt.Sprintf(
		"instance %s is bound to blueprint %s, not %s",
		e.InstanceID,
		e.Existing,
		e.Requested,
	)
}

// QueryTimeoutError indicates that a query did not complete within its
// timeout.
type QueryTimeoutError struct {
	Timeout time.Duration
}

func (e QueryTimeoutError) Error() string {
	return fmt.Sprintf("query did not complete within %s", e.Timeout)
}

// Unwrap returns context.DeadlineExceeded.
func (e QueryTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTransient returns true.
func (e QueryTimeoutError) IsTransient() bool {
	return true
}

// RecoveryFailedError indicates that an instance could not be rebuilt from its
// journal.
//
// The instance is quarantined. Every operation on it fails with this error
// until the failure is cleared by an operator.
type RecoveryFailedError struct {
	InstanceID string
	Cause      error
}

func (e RecoveryFailedError) Error() string {
	return fmt.Sprintf(
		"unable to recover instance %s: %s",
		e.InstanceID,
		e.Cause,
	)
}

// Unwrap returns the cause of the failure.
func (e RecoveryFailedError) Unwrap() error {
	return e.Cause
}

// OwnershipLostError indicates that a write to an instance was rejected
// because this node no longer holds the lease on the instance's shard.
type OwnershipLostError struct {
	InstanceID string
}

func (e OwnershipLostError) Error() string {
	return fmt.Sprintf("ownership of instance %s has been lost", e.InstanceID)
}

// IsTransient returns true.
func (e OwnershipLostError) IsTransient() bool {
	return true
}

// IsTransient returns true if err is a failure that may succeed if the
// operation is retried.
//
// Errors indicate that they are transient by implementing an IsTransient()
// method that returns true.
func IsTransient(err error) bool {
	var t interface{ IsTransient() bool }
	if errors.As(err, &t) {
		return t.IsTransient()
	}

	return errors.Is(err, context.DeadlineExceeded)
}
