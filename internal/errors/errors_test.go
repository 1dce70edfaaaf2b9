package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

func TestConstructors(t *testing.T) {
	cases := []struct {
		err  *Error
		typ  ErrorType
		code codes.Code
	}{
		{ValidationError("username is required"), TypeValidation, codes.InvalidArgument},
		{NotFoundError("user bob does not exist"), TypeNotFound, codes.NotFound},
		{ConflictError("already following bob"), TypeConflict, codes.FailedPrecondition},
		{RateLimitedError("viewed too soon"), TypeRateLimited, codes.ResourceExhausted},
		{InternalError("db down", fmt.Errorf("dial tcp")), TypeInternal, codes.Internal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.typ, tc.err.Type)
		assert.NotNil(t, tc.err.Context)
		assert.Contains(t, tc.err.Error(), string(tc.typ))
		assert.True(t, IsType(tc.err, tc.typ))

		st, ok := status.FromError(Map(tc.err))
		require.True(t, ok)
		assert.Equal(t, tc.code, st.Code())
		assert.Equal(t, tc.err.Message, st.Message())
	}
}

func TestInternalErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := InternalError("failed to follow", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWithField(t *testing.T) {
	err := ConflictError("not eligible").WithField("target", "bob")
	assert.Equal(t, "bob", err.Context["target"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	orig := NotFoundError("missing")
	assert.Same(t, orig, AsStructuredError(fmt.Errorf("wrapped: %w", orig)))

	plain := errors.New("boom")
	converted := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, converted.Type)
	assert.ErrorIs(t, converted, plain)
}

func TestMapInfraErrors(t *testing.T) {
	assert.Nil(t, Map(nil))

	st, _ := status.FromError(Map(gorm.ErrRecordNotFound))
	assert.Equal(t, codes.NotFound, st.Code())

	st, _ = status.FromError(Map(context.DeadlineExceeded))
	assert.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(Map(context.Canceled))
	assert.Equal(t, codes.Canceled, st.Code())

	st, _ = status.FromError(Map(errors.New("weird")))
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "weird", st.Message())
}

func TestIsTypeOnPlainError(t *testing.T) {
	assert.False(t, IsType(errors.New("x"), TypeConflict))
}

func TestMapContextErrorsInsideStructured(t *testing.T) {
	wrapped := InternalError("failed to resolve user", fmt.Errorf("query: %w", context.DeadlineExceeded))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(Map(wrapped)))

	wrapped = InternalError("failed to vote", context.Canceled)
	assert.Equal(t, codes.Canceled, status.Code(Map(wrapped)))

	// structured errors without a context cause keep their own code
	assert.Equal(t, codes.Internal, status.Code(Map(InternalError("db down", errors.New("dial tcp")))))
}
