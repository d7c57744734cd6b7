package grpcx

import (
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the domain used for the ErrorInfo details attached to errors
// produced by Errorf().
const ErrorDomain = "bakery"

// Errorf returns a gRPC status error with an ErrorInfo detail carrying a
// machine-readable reason and optional metadata.
func Errorf(
	code codes.Code,
	reason string,
	meta map[string]string,
	f string,
	v ...interface{},
) error {
	s := status.New(code, fmt.Sprintf(f, v...))

	s, err := s.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   ErrorDomain,
		Metadata: meta,
	})
	if err != nil {
		panic(err)
	}

	return s.Err()
}

// ErrorInfo returns the ErrorInfo detail from a gRPC status error produced by
// Errorf().
func ErrorInfo(err error) (*status.Status, *errdetails.ErrorInfo, bool) {
	s, ok := status.FromError(err)
	if !ok {
		return nil, nil, false
	}

	for _, d := range s.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return s, info, true
		}
	}

	return s, nil, false
}
