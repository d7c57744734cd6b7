package grpcx

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewServer returns a gRPC server that uses Codec for all services.
func NewServer(opts ...grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(
		append(
			[]grpc.ServerOption{grpc.ForceServerCodec(Codec{})},
			opts...,
		)...,
	)
}

// Serve runs s until ctx is canceled or an error occurs.
//
// The caller must never call s.Stop() or s.GracefulStop().
func Serve(
	ctx context.Context,
	lis net.Listener,
	s *grpc.Server,
) error {
	// Guarantee the goroutine below exits even if the server stops for some
	// other reason.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	err := s.Serve(lis)

	// Serve() only returns nil after Stop(), which we only call once ctx is
	// done.
	if err == nil {
		<-ctx.Done()
		err = ctx.Err()
	}

	return err
}

// Dial returns a client connection to the server at addr that uses Codec for
// all calls.
//
// The connection is established lazily, so Dial() does not block.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	return grpc.Dial(
		addr,
		append(
			[]grpc.DialOption{
				grpc.WithTransportCredentials(insecure.NewCredentials()),
				grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
			},
			opts...,
		)...,
	)
}
