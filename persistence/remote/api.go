package remote

import (
	"context"

	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/persistence"
	"google.golang.org/grpc"
)

// serviceName is the name of the gRPC service that exposes a journal.
const serviceName = "bakery.persistence.Journal"

// journalAPI is the set of methods implemented by the journal service.
type journalAPI interface {
	ping(context.Context, *pingRequest) (*pingResponse, error)
	persist(context.Context, *persistRequest) (*persistResponse, error)
	loadInstanceMetadata(context.Context, *loadInstanceMetadataRequest) (*loadInstanceMetadataResponse, error)
	loadEvents(context.Context, *loadEventsRequest) (*loadEventsResponse, error)
	loadInstanceIDs(context.Context, *loadInstanceIDsRequest) (*loadInstanceIDsResponse, error)
	loadBlueprint(context.Context, *loadBlueprintRequest) (*loadBlueprintResponse, error)
	loadBlueprints(context.Context, *loadBlueprintsRequest) (*loadBlueprintsResponse, error)
	loadShardLease(context.Context, *loadShardLeaseRequest) (*loadShardLeaseResponse, error)
	consumeInstanceIDs(*consumeInstanceIDsRequest, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*journalAPI)(nil),
	Methods: []grpc.MethodDesc{
		grpcx.UnaryMethod(serviceName, "Ping", journalAPI.ping),
		grpcx.UnaryMethod(serviceName, "Persist", journalAPI.persist),
		grpcx.UnaryMethod(serviceName, "LoadInstanceMetadata", journalAPI.loadInstanceMetadata),
		grpcx.UnaryMethod(serviceName, "LoadEvents", journalAPI.loadEvents),
		grpcx.UnaryMethod(serviceName, "LoadInstanceIDs", journalAPI.loadInstanceIDs),
		grpcx.UnaryMethod(serviceName, "LoadBlueprint", journalAPI.loadBlueprint),
		grpcx.UnaryMethod(serviceName, "LoadBlueprints", journalAPI.loadBlueprints),
		grpcx.UnaryMethod(serviceName, "LoadShardLease", journalAPI.loadShardLease),
	},
	Streams: []grpc.StreamDesc{
		grpcx.ServerStreamMethod("ConsumeInstanceIDs", journalAPI.consumeInstanceIDs),
	},
}

type pingRequest struct {
	Journal string `cbor:"1,keyasint"`
}

type pingResponse struct {
	Journal string `cbor:"1,keyasint"`
}

type persistRequest struct {
	Journal    string      `cbor:"1,keyasint"`
	Operations []operation `cbor:"2,keyasint"`
}

type persistResponse struct{}

type loadInstanceMetadataRequest struct {
	Journal    string `cbor:"1,keyasint"`
	InstanceID string `cbor:"2,keyasint"`
}

type loadInstanceMetadataResponse struct {
	Metadata persistence.InstanceMetadata `cbor:"1,keyasint"`
	Found    bool                         `cbor:"2,keyasint"`
}

type loadEventsRequest struct {
	Journal    string `cbor:"1,keyasint"`
	InstanceID string `cbor:"2,keyasint"`
}

type loadEventsResponse struct {
	Events []persistence.Event `cbor:"1,keyasint"`
}

type loadInstanceIDsRequest struct {
	Journal string `cbor:"1,keyasint"`
}

type loadInstanceIDsResponse struct {
	InstanceIDs []string `cbor:"1,keyasint"`
}

type loadBlueprintRequest struct {
	Journal     string `cbor:"1,keyasint"`
	BlueprintID string `cbor:"2,keyasint"`
}

type loadBlueprintResponse struct {
	Blueprint persistence.BlueprintRecord `cbor:"1,keyasint"`
	Found     bool                        `cbor:"2,keyasint"`
}

type loadBlueprintsRequest struct {
	Journal string `cbor:"1,keyasint"`
}

type loadBlueprintsResponse struct {
	Blueprints []persistence.BlueprintRecord `cbor:"1,keyasint"`
}

type loadShardLeaseRequest struct {
	Journal string `cbor:"1,keyasint"`
	Shard   uint32 `cbor:"2,keyasint"`
}

type loadShardLeaseResponse struct {
	Lease persistence.ShardLease `cbor:"1,keyasint"`
}

type consumeInstanceIDsRequest struct {
	Journal string `cbor:"1,keyasint"`
	Offset  uint64 `cbor:"2,keyasint"`
}

type consumeInstanceIDsResponse struct {
	InstanceID string `cbor:"1,keyasint"`
	Next       uint64 `cbor:"2,keyasint"`
}
