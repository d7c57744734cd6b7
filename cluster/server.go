package cluster

import (
	"context"

	"github.com/bakerykit/bakery/index"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server is the gRPC server that exposes the local member's process index to
// the rest of the cluster.
type Server struct {
	Membership *Membership
	Leaser     *Leaser
	Local      *index.Local
}

// Register registers the server with a gRPC server.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) ping(ctx context.Context, req *pingRequest) (*pingResponse, error) {
	s.Membership.observe(req.From)

	return &pingResponse{
		Self:    s.Membership.Self,
		Members: s.Membership.Members(),
	}, nil
}

func (s *Server) getOrCreate(ctx context.Context, req *getOrCreateRequest) (*getOrCreateResponse, error) {
	if err := s.checkOwner(req.InstanceID); err != nil {
		return nil, err
	}

	if _, err := s.Local.GetOrCreate(ctx, req.InstanceID, req.BlueprintID); err != nil {
		return nil, toStatus(err)
	}

	return &getOrCreateResponse{}, nil
}

func (s *Server) delete(ctx context.Context, req *deleteRequest) (*deleteResponse, error) {
	if err := s.checkOwner(req.InstanceID); err != nil {
		return nil, err
	}

	if err := s.Local.Delete(ctx, req.InstanceID); err != nil {
		return nil, toStatus(err)
	}

	return &deleteResponse{}, nil
}

func (s *Server) fire(ctx context.Context, req *fireRequest) (*fireResponse, error) {
	h, err := s.handle(ctx, req.InstanceID, req.BlueprintID)
	if err != nil {
		return nil, err
	}

	if err := h.Fire(ctx, req.Event); err != nil {
		return nil, toStatus(err)
	}

	return &fireResponse{}, nil
}

func (s *Server) execute(ctx context.Context, req *executeRequest) (*executeResponse, error) {
	h, err := s.handle(ctx, req.InstanceID, req.BlueprintID)
	if err != nil {
		return nil, err
	}

	out, err := h.Execute(ctx, req.Interaction)
	if err != nil {
		return nil, toStatus(err)
	}

	return &executeResponse{Output: out}, nil
}

func (s *Server) snapshot(ctx context.Context, req *snapshotRequest) (*snapshotResponse, error) {
	h, err := s.handle(ctx, req.InstanceID, req.BlueprintID)
	if err != nil {
		return nil, err
	}

	snap, err := h.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return &snapshotResponse{Snapshot: snap}, nil
}

// list lists the instances in the requested shards.
//
// Any member may answer for any shard, as the journal is shared.
func (s *Server) list(ctx context.Context, req *listRequest) (*listResponse, error) {
	if req.ShardCount == 0 {
		return nil, status.Error(codes.InvalidArgument, "shard count must be positive")
	}

	instances, err := s.Local.List(
		ctx,
		req.Timeout,
		inShards(req.ShardCount, req.Shards),
	)
	if err != nil {
		return nil, toStatus(err)
	}

	return &listResponse{Instances: instances}, nil
}

// handle returns the local handle for an instance that the local member owns.
func (s *Server) handle(ctx context.Context, instanceID, blueprintID string) (index.Handle, error) {
	if err := s.checkOwner(instanceID); err != nil {
		return nil, err
	}

	h, err := s.Local.GetOrCreate(ctx, instanceID, blueprintID)
	if err != nil {
		return nil, toStatus(err)
	}

	return h, nil
}

func (s *Server) checkOwner(instanceID string) error {
	if s.Leaser.Owns(instanceID) {
		return nil
	}

	return toStatus(NotOwnerError{
		InstanceID: instanceID,
		Shard:      ShardOf(instanceID, s.Leaser.ShardCount),
	})
}

// inShards returns a filter that matches instance IDs within the given
// shards.
func inShards(n uint32, shards []uint32) func(string) bool {
	set := make(map[uint32]struct{}, len(shards))
	for _, shard := range shards {
		set[shard] = struct{}{}
	}

	return func(id string) bool {
		_, ok := set[ShardOf(id, n)]
		return ok
	}
}
