// Package remote provides access to a journal hosted by another process via
// gRPC.
//
// It allows the members of a cluster to share a single journal. One process
// hosts the journal with a Server, and each member opens it using a Provider.
package remote

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence"
	"github.com/dogmatiq/dodeca/logging"
	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// Error reasons attached to the errors returned by the journal service.
const (
	reasonConflict        = "CONFLICT"
	reasonDataStoreClosed = "DATA_STORE_CLOSED"
	reasonDataStoreLocked = "DATA_STORE_LOCKED"
	reasonBadRequest      = "BAD_REQUEST"
)

// Server hosts journals from a persistence.Provider so that they can be
// accessed remotely.
//
// Each journal is opened the first time it is requested and remains open until
// the server is closed.
type Server struct {
	// Provider is the provider used to open the hosted journals.
	Provider persistence.Provider

	// Logger is the target for log messages about the server.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	m      sync.Mutex
	stores map[string]persistence.DataStore
	closed bool
}

// Register registers the journal service with a gRPC server.
//
// The gRPC server must use grpcx.Codec.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Close closes every journal opened by the server.
func (s *Server) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	s.closed = true

	var err error
	for name, ds := range s.stores {
		err = multierr.Append(err, ds.Close())
		delete(s.stores, name)
	}

	return err
}

// dataStore returns the data-store for the named journal, opening it if
// necessary.
func (s *Server) dataStore(ctx context.Context, name string) (persistence.DataStore, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	if ds, ok := s.stores[name]; ok {
		return ds, nil
	}

	ds, err := s.Provider.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	if s.stores == nil {
		s.stores = map[string]persistence.DataStore{}
	}
	s.stores[name] = ds

	logging.Log(s.Logger, "opened the '%s' journal for remote access", name)

	return ds, nil
}

func (s *Server) ping(ctx context.Context, req *pingRequest) (*pingResponse, error) {
	if _, err := s.dataStore(ctx, req.Journal); err != nil {
		return nil, toStatus(err, nil)
	}

	return &pingResponse{Journal: req.Journal}, nil
}

func (s *Server) persist(ctx context.Context, req *persistRequest) (*persistResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	b, err := unmarshalBatch(req.Operations)
	if err != nil {
		return nil, grpcx.Errorf(codes.InvalidArgument, reasonBadRequest, nil, "%s", err)
	}

	if err := ds.Persist(ctx, b); err != nil {
		return nil, toStatus(err, b)
	}

	return &persistResponse{}, nil
}

func (s *Server) loadInstanceMetadata(ctx context.Context, req *loadInstanceMetadataRequest) (*loadInstanceMetadataResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	md, ok, err := ds.LoadInstanceMetadata(ctx, req.InstanceID)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadInstanceMetadataResponse{Metadata: md, Found: ok}, nil
}

func (s *Server) loadEvents(ctx context.Context, req *loadEventsRequest) (*loadEventsResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	r, err := ds.LoadEvents(ctx, req.InstanceID)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	events, err := persistence.LoadAllEvents(ctx, r)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadEventsResponse{Events: events}, nil
}

func (s *Server) loadInstanceIDs(ctx context.Context, req *loadInstanceIDsRequest) (*loadInstanceIDsResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	ids, err := ds.LoadInstanceIDs(ctx)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadInstanceIDsResponse{InstanceIDs: ids}, nil
}

func (s *Server) loadBlueprint(ctx context.Context, req *loadBlueprintRequest) (*loadBlueprintResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	r, ok, err := ds.LoadBlueprint(ctx, req.BlueprintID)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadBlueprintResponse{Blueprint: r, Found: ok}, nil
}

func (s *Server) loadBlueprints(ctx context.Context, req *loadBlueprintsRequest) (*loadBlueprintsResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	records, err := ds.LoadBlueprints(ctx)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadBlueprintsResponse{Blueprints: records}, nil
}

func (s *Server) loadShardLease(ctx context.Context, req *loadShardLeaseRequest) (*loadShardLeaseResponse, error) {
	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	l, err := ds.LoadShardLease(ctx, req.Shard)
	if err != nil {
		return nil, toStatus(err, nil)
	}

	return &loadShardLeaseResponse{Lease: l}, nil
}

func (s *Server) consumeInstanceIDs(req *consumeInstanceIDsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()

	ds, err := s.dataStore(ctx, req.Journal)
	if err != nil {
		return toStatus(err, nil)
	}

	cur, err := ds.OpenInstanceIDStream(ctx, req.Offset)
	if err != nil {
		return toStatus(err, nil)
	}
	defer cur.Close()

	for {
		id, next, err := cur.Next(ctx)
		if err != nil {
			return toStatus(err, nil)
		}

		if err := stream.SendMsg(&consumeInstanceIDsResponse{
			InstanceID: id,
			Next:       next,
		}); err != nil {
			return err
		}
	}
}

// toStatus converts err to a gRPC status error.
//
// b is the batch being persisted, if any. It is used to identify the operation
// that caused an optimistic concurrency conflict.
func toStatus(err error, b persistence.Batch) error {
	var conflict persistence.ConflictError

	switch {
	case errors.As(err, &conflict):
		return grpcx.Errorf(
			codes.Aborted,
			reasonConflict,
			map[string]string{
				"index": strconv.Itoa(b.IndexOf(conflict.Cause)),
			},
			"%s",
			err,
		)
	case errors.Is(err, persistence.ErrDataStoreClosed):
		return grpcx.Errorf(codes.Unavailable, reasonDataStoreClosed, nil, "%s", err)
	case errors.Is(err, persistence.ErrDataStoreLocked):
		return grpcx.Errorf(codes.Unavailable, reasonDataStoreLocked, nil, "%s", err)
	case errors.Is(err, context.DeadlineExceeded):
		return grpcx.Errorf(codes.DeadlineExceeded, "", nil, "%s", err)
	case errors.Is(err, context.Canceled):
		return grpcx.Errorf(codes.Canceled, "", nil, "%s", err)
	default:
		return err
	}
}

// fromStatus converts a gRPC status error produced by toStatus() back into the
// original error.
func fromStatus(ctx context.Context, err error, b persistence.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, info, ok := grpcx.ErrorInfo(err)
	if !ok {
		return err
	}

	switch info.GetReason() {
	case reasonConflict:
		i, convErr := strconv.Atoi(info.GetMetadata()["index"])
		if convErr == nil && i >= 0 && i < len(b) {
			return persistence.ConflictError{Cause: b[i]}
		}
	case reasonDataStoreClosed:
		return persistence.ErrDataStoreClosed
	case reasonDataStoreLocked:
		return persistence.ErrDataStoreLocked
	}

	return err
}
