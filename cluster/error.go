package cluster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bakerykit/bakery/blueprint"
	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/interaction"
	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/process"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NotOwnerError indicates that an operation was sent to a member that does
// not hold the lease on the instance's shard.
type NotOwnerError struct {
	InstanceID string
	Shard      uint32
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf(
		"this member does not own shard %d, which contains instance %s",
		e.Shard,
		e.InstanceID,
	)
}

// IsTransient returns true.
func (e NotOwnerError) IsTransient() bool {
	return true
}

const (
	reasonUnknownBlueprint   = "UNKNOWN_BLUEPRINT"
	reasonBlueprintMismatch  = "BLUEPRINT_MISMATCH"
	reasonInstanceDeleted    = "INSTANCE_DELETED"
	reasonUnknownInstance    = "UNKNOWN_INSTANCE"
	reasonUnknownInteraction = "UNKNOWN_INTERACTION"
	reasonUnknownEvent       = "UNKNOWN_EVENT"
	reasonRecoveryFailed     = "RECOVERY_FAILED"
	reasonNotOwner           = "NOT_OWNER"
	reasonOwnershipLost      = "OWNERSHIP_LOST"
	reasonQueryTimeout       = "QUERY_TIMEOUT"
)

// toStatus converts err to a gRPC status error that can be converted back to
// an equivalent error by fromStatus().
func toStatus(err error) error {
	var (
		unknownBlueprint   blueprint.UnknownBlueprintError
		mismatch           index.BlueprintMismatchError
		deleted            index.InstanceDeletedError
		unknownInstance    index.UnknownInstanceError
		unknownInteraction interaction.UnknownInteractionError
		unknownEvent       process.UnknownEventError
		recovery           index.RecoveryFailedError
		notOwner           NotOwnerError
		lost               index.OwnershipLostError
		timeout            index.QueryTimeoutError
	)

	switch {
	case errors.As(err, &unknownBlueprint):
		return grpcx.Errorf(
			codes.NotFound,
			reasonUnknownBlueprint,
			map[string]string{"blueprint_id": unknownBlueprint.ID},
			"%s", err,
		)
	case errors.As(err, &mismatch):
		return grpcx.Errorf(
			codes.FailedPrecondition,
			reasonBlueprintMismatch,
			map[string]string{
				"instance_id": mismatch.InstanceID,
				"existing":    mismatch.Existing,
				"requested":   mismatch.Requested,
			},
			"%s", err,
		)
	case errors.As(err, &deleted):
		return grpcx.Errorf(
			codes.FailedPrecondition,
			reasonInstanceDeleted,
			map[string]string{"instance_id": deleted.InstanceID},
			"%s", err,
		)
	case errors.As(err, &unknownInstance):
		return grpcx.Errorf(
			codes.NotFound,
			reasonUnknownInstance,
			map[string]string{"instance_id": unknownInstance.InstanceID},
			"%s", err,
		)
	case errors.As(err, &unknownInteraction):
		return grpcx.Errorf(
			codes.NotFound,
			reasonUnknownInteraction,
			map[string]string{"name": unknownInteraction.Name},
			"%s", err,
		)
	case errors.As(err, &unknownEvent):
		return grpcx.Errorf(
			codes.InvalidArgument,
			reasonUnknownEvent,
			map[string]string{
				"instance_id": unknownEvent.InstanceID,
				"name":        unknownEvent.Name,
			},
			"%s", err,
		)
	case errors.As(err, &recovery):
		return grpcx.Errorf(
			codes.DataLoss,
			reasonRecoveryFailed,
			map[string]string{
				"instance_id": recovery.InstanceID,
				"cause":       recovery.Cause.Error(),
			},
			"%s", err,
		)
	case errors.As(err, &notOwner):
		return grpcx.Errorf(
			codes.Unavailable,
			reasonNotOwner,
			map[string]string{
				"instance_id": notOwner.InstanceID,
				"shard":       strconv.FormatUint(uint64(notOwner.Shard), 10),
			},
			"%s", err,
		)
	case errors.As(err, &lost):
		return grpcx.Errorf(
			codes.Unavailable,
			reasonOwnershipLost,
			map[string]string{"instance_id": lost.InstanceID},
			"%s", err,
		)
	case errors.As(err, &timeout):
		return grpcx.Errorf(
			codes.DeadlineExceeded,
			reasonQueryTimeout,
			map[string]string{"timeout": timeout.Timeout.String()},
			"%s", err,
		)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return err
	}
}

// fromStatus converts a gRPC status error produced by toStatus() back into
// the original error.
func fromStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s, info, ok := grpcx.ErrorInfo(err)
	if !ok {
		return err
	}

	meta := info.GetMetadata()

	switch info.GetReason() {
	case reasonUnknownBlueprint:
		return blueprint.UnknownBlueprintError{ID: meta["blueprint_id"]}
	case reasonBlueprintMismatch:
		return index.BlueprintMismatchError{
			InstanceID: meta["instance_id"],
			Existing:   meta["existing"],
			Requested:  meta["requested"],
		}
	case reasonInstanceDeleted:
		return index.InstanceDeletedError{InstanceID: meta["instance_id"]}
	case reasonUnknownInstance:
		return index.UnknownInstanceError{InstanceID: meta["instance_id"]}
	case reasonUnknownInteraction:
		return interaction.UnknownInteractionError{Name: meta["name"]}
	case reasonUnknownEvent:
		return process.UnknownEventError{
			InstanceID: meta["instance_id"],
			Name:       meta["name"],
		}
	case reasonRecoveryFailed:
		return index.RecoveryFailedError{
			InstanceID: meta["instance_id"],
			Cause:      errors.New(meta["cause"]),
		}
	case reasonNotOwner:
		shard, _ := strconv.ParseUint(meta["shard"], 10, 32)
		return NotOwnerError{
			InstanceID: meta["instance_id"],
			Shard:      uint32(shard),
		}
	case reasonOwnershipLost:
		return index.OwnershipLostError{InstanceID: meta["instance_id"]}
	case reasonQueryTimeout:
		d, _ := time.ParseDuration(meta["timeout"])
		return index.QueryTimeoutError{Timeout: d}
	}

	return s.Err()
}
