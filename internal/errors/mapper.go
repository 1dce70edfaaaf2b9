// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts engine/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	// the caller's deadline or cancellation wins over whatever wrapped it
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return status.Error(Code(structuredErr.Type), structuredErr.Message)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	default:
		// fallback → bubble up error message for debugging
		return status.Error(codes.Internal, err.Error())
	}
}

// Code returns the gRPC code used for an error type.
func Code(t ErrorType) codes.Code {
	switch t {
	case TypeValidation:
		return codes.InvalidArgument
	case TypeNotFound:
		return codes.NotFound
	case TypeConflict:
		return codes.FailedPrecondition
	case TypeRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
