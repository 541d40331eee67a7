package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/simaogato/transfer-engine/internal/telemetry"
)

// UnaryInterceptors returns the server chain: logging outermost so recovered
// panics are counted and logged as Internal.
func UnaryInterceptors(logger *zap.Logger) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		LoggingInterceptor(logger),
		RecoveryInterceptor(),
	}
}

// RecoveryInterceptor turns a handler panic into an Internal status
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return recovery.UnaryServerInterceptor(
		recovery.WithRecoveryHandlerContext(func(ctx context.Context, p any) error {
			return &internalError{cause: fmt.Errorf("panic: %v", p)}
		}),
	)
}

// internalError keeps the cause for server logs while clients only see a generic status
type internalError struct {
	cause error
}

func (e *internalError) Error() string {
	return e.cause.Error()
}

func (e *internalError) Unwrap() error {
	return e.cause
}

func (e *internalError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, "internal error")
}

// LoggingInterceptor returns a gRPC unary server interceptor that traces each
// call, counts it by method and status code, and logs the outcome.
// Internal and Unknown codes are logged at error level.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, span := telemetry.Tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.method", info.FullMethod)),
		)
		defer span.End()

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		telemetry.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
		span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}

		switch code {
		case codes.OK:
			span.SetStatus(otelcodes.Ok, "")
			telemetry.WithTrace(ctx, logger).Info("grpc request", fields...)
		case codes.Internal, codes.Unknown:
			span.SetStatus(otelcodes.Error, err.Error())
			telemetry.WithTrace(ctx, logger).Error("grpc request", append(fields, zap.Error(err))...)
		default:
			telemetry.WithTrace(ctx, logger).Info("grpc request", append(fields, zap.Error(err))...)
		}

		return resp, err
	}
}
