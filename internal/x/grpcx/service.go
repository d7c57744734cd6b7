package grpcx

import (
	"context"

	"google.golang.org/grpc"
)

// UnaryMethod returns a description of a unary RPC method that is handled by
// calling fn on a server of type S.
func UnaryMethod[S, Req, Res any](
	service, method string,
	fn func(S, context.Context, *Req) (*Res, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv interface{},
			ctx context.Context,
			dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}

			if interceptor == nil {
				return handler(ctx, req)
			}

			return interceptor(
				ctx,
				req,
				&grpc.UnaryServerInfo{
					Server:     srv,
					FullMethod: FullMethod(service, method),
				},
				handler,
			)
		},
	}
}

// ServerStreamMethod returns a description of a server-streaming RPC method
// that is handled by calling fn on a server of type S.
func ServerStreamMethod[S, Req any](
	method string,
	fn func(S, *Req, grpc.ServerStream) error,
) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			req := new(Req)
			if err := stream.RecvMsg(req); err != nil {
				return err
			}

			return fn(srv.(S), req, stream)
		},
	}
}

// Invoke calls a unary RPC method and returns its response.
func Invoke[Res any](
	ctx context.Context,
	conn grpc.ClientConnInterface,
	service, method string,
	req interface{},
) (*Res, error) {
	res := new(Res)

	if err := conn.Invoke(
		ctx,
		FullMethod(service, method),
		req,
		res,
	); err != nil {
		return nil, err
	}

	return res, nil
}

// OpenServerStream calls a server-streaming RPC method.
//
// The returned stream is bound to ctx. Responses are read with RecvMsg().
func OpenServerStream(
	ctx context.Context,
	conn grpc.ClientConnInterface,
	service, method string,
	req interface{},
) (grpc.ClientStream, error) {
	stream, err := conn.NewStream(
		ctx,
		&grpc.StreamDesc{
			StreamName:    method,
			ServerStreams: true,
		},
		FullMethod(service, method),
	)
	if err != nil {
		return nil, err
	}

	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}

	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	return stream, nil
}

// FullMethod returns the fully-qualified name of an RPC method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// FromContextError converts a gRPC status error caused by the cancelation of
// ctx back into the context's error.
func FromContextError(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}
