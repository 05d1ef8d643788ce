package grpcutil

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func Error(code codes.Code, err error) error {
	return status.Error(code, err.Error())
}

func ErrorNotFound(err error) error {
	return Error(codes.NotFound, err)
}

// IsErrorNotFound reports whether err carries the NotFound status code.
// Storage consumers use this to distinguish "no such key" from real failures.
func IsErrorNotFound(err error) bool {
	if err == nil {
		return false
	}
	return status.Code(err) == codes.NotFound
}
