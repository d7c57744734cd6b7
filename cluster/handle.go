package cluster

import (
	"context"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/process"
	"google.golang.org/grpc"
)

// handle is the cluster index's implementation of index.Handle.
//
// Each operation is routed separately, so the handle remains valid when the
// instance's shard changes hands.
type handle struct {
	index       *Index
	instanceID  string
	blueprintID string
}

func (h handle) InstanceID() string {
	return h.instanceID
}

func (h handle) BlueprintID() string {
	return h.blueprintID
}

func (h handle) Fire(ctx context.Context, ev process.SensoryEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	return h.index.route(
		ctx,
		h.instanceID,
		func(ctx context.Context) error {
			lh, err := h.index.Local.GetOrCreate(ctx, h.instanceID, h.blueprintID)
			if err != nil {
				return err
			}
			return lh.Fire(ctx, ev)
		},
		func(ctx context.Context, conn grpc.ClientConnInterface) error {
			_, err := grpcx.Invoke[fireResponse](
				ctx,
				conn,
				serviceName,
				"Fire",
				&fireRequest{
					InstanceID:  h.instanceID,
					BlueprintID: h.blueprintID,
					Event:       ev,
				},
			)
			return err
		},
	)
}

func (h handle) Execute(ctx context.Context, interaction string) (map[string]string, error) {
	var output map[string]string

	err := h.index.route(
		ctx,
		h.instanceID,
		func(ctx context.Context) error {
			lh, err := h.index.Local.GetOrCreate(ctx, h.instanceID, h.blueprintID)
			if err != nil {
				return err
			}
			output, err = lh.Execute(ctx, interaction)
			return err
		},
		func(ctx context.Context, conn grpc.ClientConnInterface) error {
			res, err := grpcx.Invoke[executeResponse](
				ctx,
				conn,
				serviceName,
				"Execute",
				&executeRequest{
					InstanceID:  h.instanceID,
					BlueprintID: h.blueprintID,
					Interaction: interaction,
				},
			)
			if err != nil {
				return err
			}
			output = res.Output
			return nil
		},
	)

	return output, err
}

func (h handle) Snapshot(ctx context.Context) (process.Snapshot, error) {
	var snap process.Snapshot

	err := h.index.route(
		ctx,
		h.instanceID,
		func(ctx context.Context) error {
			lh, err := h.index.Local.GetOrCreate(ctx, h.instanceID, h.blueprintID)
			if err != nil {
				return err
			}
			snap, err = lh.Snapshot(ctx)
			return err
		},
		func(ctx context.Context, conn grpc.ClientConnInterface) error {
			res, err := grpcx.Invoke[snapshotResponse](
				ctx,
				conn,
				serviceName,
				"Snapshot",
				&snapshotRequest{
					InstanceID:  h.instanceID,
					BlueprintID: h.blueprintID,
				},
			)
			if err != nil {
				return err
			}
			snap = res.Snapshot
			return nil
		},
	)

	return snap, err
}
