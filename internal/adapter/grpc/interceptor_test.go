package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	tests := []struct {
		name          string
		handlerErr    error
		expectedCode  codes.Code
		expectedLevel zapcore.Level
	}{
		{
			name:          "Success",
			handlerErr:    nil,
			expectedCode:  codes.OK,
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Business Rejection",
			handlerErr:    status.Error(codes.FailedPrecondition, "not enough funds"),
			expectedCode:  codes.FailedPrecondition,
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Internal Failure",
			handlerErr:    status.Error(codes.Internal, "connection reset"),
			expectedCode:  codes.Internal,
			expectedLevel: zapcore.ErrorLevel,
		},
		{
			name:          "Plain Error",
			handlerErr:    errors.New("boom"),
			expectedCode:  codes.Unknown,
			expectedLevel: zapcore.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			interceptor := LoggingInterceptor(zap.New(core))

			handlerCalled := false
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				handlerCalled = true
				if tt.handlerErr != nil {
					return nil, tt.handlerErr
				}
				return "success", nil
			}

			info := &grpc.UnaryServerInfo{
				FullMethod: "/test.Service/Method",
			}

			resp, err := interceptor(context.Background(), "test-request", info, handler)

			assert.True(t, handlerCalled, "handler must always be called")
			assert.Equal(t, tt.expectedCode, status.Code(err))
			if tt.handlerErr == nil {
				assert.NoError(t, err)
				assert.Equal(t, "success", resp)
			} else {
				assert.Equal(t, tt.handlerErr, err)
			}

			entries := logs.All()
			if assert.Len(t, entries, 1) {
				assert.Equal(t, tt.expectedLevel, entries[0].Level)
				fields := entries[0].ContextMap()
				assert.Equal(t, "/test.Service/Method", fields["method"])
				assert.Equal(t, tt.expectedCode.String(), fields["code"])
			}
		})
	}
}

func TestRecoveryInterceptor_PanicBecomesInternal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging := LoggingInterceptor(zap.New(core))
	recovering := RecoveryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Service/Method"}

	panicking := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("nil map write")
	}

	var err error
	assert.NotPanics(t, func() {
		_, err = logging(context.Background(), "test-request", info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return recovering(ctx, req, info, panicking)
		})
	})

	st := status.Convert(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Contains(t, entries[0].ContextMap()["error"], "nil map write")
	}
}
