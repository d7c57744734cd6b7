package mlog

import (
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
)

// LogCreated logs a message indicating that a new process instance was
// created.
func LogCreated(log logging.Logger, instanceID, blueprintID string) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				InstanceIDIcon.WithID(instanceID),
				BlueprintIDIcon.WithID(blueprintID),
			},
			[]Icon{CreateIcon, ""},
			"instance created",
		),
	)
}

// LogRehydrated logs a debug message indicating that an instance was rebuilt
// from the journal.
func LogRehydrated(log logging.Logger, instanceID, blueprintID string, events int) {
	logging.Debug(
		log,
		"%s",
		String(
			[]IconWithLabel{
				InstanceIDIcon.WithID(instanceID),
				BlueprintIDIcon.WithID(blueprintID),
			},
			[]Icon{RehydrateIcon, ""},
			"instance rehydrated",
			fmt.Sprintf("replayed %d event(s)", events),
		),
	)
}

// LogPassivated logs a debug message indicating that an instance was released
// from memory.
func LogPassivated(log logging.Logger, instanceID string, idle time.Duration) {
	logging.Debug(
		log,
		"%s",
		String(
			[]IconWithLabel{
				InstanceIDIcon.WithID(instanceID),
			},
			[]Icon{PassivateIcon, ""},
			"instance passivated",
			fmt.Sprintf("idle for %s", idle.Round(time.Millisecond)),
		),
	)
}

// LogDeleted logs a message indicating that an instance was tombstoned.
func LogDeleted(log logging.Logger, instanceID, reason string) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				InstanceIDIcon.WithID(instanceID),
			},
			[]Icon{DeleteIcon, ""},
			"instance deleted",
			reason,
		),
	)
}

// LogRecoveryFailed logs a message indicating that an instance could not be
// rebuilt from the journal and has been quarantined.
func LogRecoveryFailed(log logging.Logger, instanceID string, cause error) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				InstanceIDIcon.WithID(instanceID),
			},
			[]Icon{RehydrateIcon, errorIcon(cause)},
			"instance recovery failed",
			cause.Error(),
		),
	)
}

// LogShardAcquired logs a message indicating that this node now owns a shard.
func LogShardAcquired(log logging.Logger, shard uint32, addr string) {
	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				ShardIcon.WithLabel("%d", shard),
				NodeIcon.WithLabel("%s", addr),
			},
			[]Icon{AcquireIcon, ""},
			"shard lease acquired",
		),
	)
}

// LogShardReleased logs a message indicating that this node no longer owns a
// shard. cause is nil if the lease was given up voluntarily.
func LogShardReleased(log logging.Logger, shard uint32, addr string, cause error) {
	text := []string{"shard lease released"}
	if cause != nil {
		text = append(text, cause.Error())
	}

	logging.LogString(
		log,
		String(
			[]IconWithLabel{
				ShardIcon.WithLabel("%d", shard),
				NodeIcon.WithLabel("%s", addr),
			},
			[]Icon{ReleaseIcon, errorIcon(cause)},
			text...,
		),
	)
}
