package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const (
	requestIDKey        contextKey = "request_id"
	requestIDHeader     string     = "x-request-id"
	authorizationHeader string     = "authorization"
)

// recoveryInterceptor recovers from panics in gRPC handlers.
func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("gRPC panic recovered", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// requestIDInterceptor puts the caller's request ID, or a fresh one, on the
// context and echoes it back as a response header.
func requestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := incomingHeader(ctx, requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))
		return handler(context.WithValue(ctx, requestIDKey, id), req)
	}
}

// loggingInterceptor logs every unary call.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{
			"request_id", getRequestID(ctx),
			"method", info.FullMethod,
			"status", code.String(),
			"duration", time.Since(start),
		}
		if err != nil && code != codes.InvalidArgument {
			logger.Warn("gRPC request", append(attrs, "error", err)...)
		} else {
			logger.Debug("gRPC request", attrs...)
		}
		return resp, err
	}
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return incomingHeader(ctx, requestIDHeader)
}

func incomingHeader(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
