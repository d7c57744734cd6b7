package cluster

import (
	"context"
	"time"

	"github.com/bakerykit/bakery/index"
	"github.com/bakerykit/bakery/internal/x/grpcx"
	"github.com/bakerykit/bakery/process"
	"google.golang.org/grpc"
)

// serviceName is the name of the gRPC service that each member exposes to the
// rest of the cluster.
const serviceName = "bakery.cluster.Node"

// nodeAPI is the set of methods implemented by the node service.
type nodeAPI interface {
	ping(context.Context, *pingRequest) (*pingResponse, error)
	getOrCreate(context.Context, *getOrCreateRequest) (*getOrCreateResponse, error)
	delete(context.Context, *deleteRequest) (*deleteResponse, error)
	fire(context.Context, *fireRequest) (*fireResponse, error)
	execute(context.Context, *executeRequest) (*executeResponse, error)
	snapshot(context.Context, *snapshotRequest) (*snapshotResponse, error)
	list(context.Context, *listRequest) (*listResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*nodeAPI)(nil),
	Methods: []grpc.MethodDesc{
		grpcx.UnaryMethod(serviceName, "Ping", nodeAPI.ping),
		grpcx.UnaryMethod(serviceName, "GetOrCreate", nodeAPI.getOrCreate),
		grpcx.UnaryMethod(serviceName, "Delete", nodeAPI.delete),
		grpcx.UnaryMethod(serviceName, "Fire", nodeAPI.fire),
		grpcx.UnaryMethod(serviceName, "Execute", nodeAPI.execute),
		grpcx.UnaryMethod(serviceName, "Snapshot", nodeAPI.snapshot),
		grpcx.UnaryMethod(serviceName, "List", nodeAPI.list),
	},
}

type pingRequest struct {
	From Member `cbor:"1,keyasint"`
}

type pingResponse struct {
	Self    Member   `cbor:"1,keyasint"`
	Members []Member `cbor:"2,keyasint"`
}

type getOrCreateRequest struct {
	InstanceID  string `cbor:"1,keyasint"`
	BlueprintID string `cbor:"2,keyasint"`
}

type getOrCreateResponse struct{}

type deleteRequest struct {
	InstanceID string `cbor:"1,keyasint"`
}

type deleteResponse struct{}

type fireRequest struct {
	InstanceID  string               `cbor:"1,keyasint"`
	BlueprintID string               `cbor:"2,keyasint"`
	Event       process.SensoryEvent `cbor:"3,keyasint"`
}

type fireResponse struct{}

type executeRequest struct {
	InstanceID  string `cbor:"1,keyasint"`
	BlueprintID string `cbor:"2,keyasint"`
	Interaction string `cbor:"3,keyasint"`
}

type executeResponse struct {
	Output map[string]string `cbor:"1,keyasint"`
}

type snapshotRequest struct {
	InstanceID  string `cbor:"1,keyasint"`
	BlueprintID string `cbor:"2,keyasint"`
}

type snapshotResponse struct {
	Snapshot process.Snapshot `cbor:"1,keyasint"`
}

type listRequest struct {
	ShardCount uint32        `cbor:"1,keyasint"`
	Shards     []uint32      `cbor:"2,keyasint"`
	Timeout    time.Duration `cbor:"3,keyasint"`
}

type listResponse struct {
	Instances []index.Metadata `cbor:"1,keyasint"`
}
