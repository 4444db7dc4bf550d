package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/gophaccount-server/internal/logger"
)

// Logging logs gRPC calls with their duration and status code.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// HandleGRPC is the unary interceptor.
func (l *Logging) HandleGRPC(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	l.logger.Debug("gRPC request started", "method", info.FullMethod)

	resp, err := handler(ctx, req)
	l.done(info.FullMethod, start, err)

	return resp, err
}

// HandleGRPCStream is the stream interceptor. Health watches are long lived,
// so the record is written when the stream ends.
func (l *Logging) HandleGRPCStream(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	l.logger.Debug("gRPC stream started", "method", info.FullMethod)

	err := handler(srv, ss)
	l.done(info.FullMethod, start, err)

	return err
}

func (l *Logging) done(method string, start time.Time, err error) {
	code := codeOf(err)
	args := []any{
		"method", method,
		"duration_ms", time.Since(start).Milliseconds(),
		"status", code.String(),
	}

	if err != nil && code != codes.Canceled {
		l.logger.Error("gRPC request failed", append(args, "error", err.Error())...)
		return
	}
	l.logger.Info("gRPC request completed", args...)
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Internal
}
