package router

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/dtroode/gophaccount-server/internal/api/grpc/middleware"
	"github.com/dtroode/gophaccount-server/internal/logger"
)

// Router builds the operations gRPC server.
type Router struct {
	health *health.Server
	logger *logger.Logger
}

// New creates new gRPC Router instance serving healthServer.
func New(healthServer *health.Server, logger *logger.Logger) *Router {
	return &Router{
		health: healthServer,
		logger: logger,
	}
}

// Register creates the gRPC server with request logging and panic recovery
// and registers the health and reflection services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	recoveryOpt := recovery.WithRecoveryHandlerContext(r.recover)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			recovery.UnaryServerInterceptor(recoveryOpt),
		),
		grpc.ChainStreamInterceptor(
			logging.HandleGRPCStream,
			recovery.StreamServerInterceptor(recoveryOpt),
		),
	)

	healthpb.RegisterHealthServer(s, r.health)
	reflection.Register(s)

	return s
}

func (r *Router) recover(_ context.Context, p any) error {
	r.logger.Error("gRPC handler panicked", "panic", p)
	return status.Error(codes.Internal, "internal error")
}
