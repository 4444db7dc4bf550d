package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// GRPCServer wraps a gRPC server with address and lifecycle methods.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
}

// NewGRPCServer creates a GRPCServer with given server and address. The
// health server, if set, reports NOT_SERVING once Stop begins.
func NewGRPCServer(server *grpc.Server, healthServer *health.Server, addr string) *GRPCServer {
	return &GRPCServer{server: server, health: healthServer, addr: addr}
}

var _ model.Server = (*GRPCServer)(nil)

// Start starts serving on the configured address using the provided security layer.
func (s *GRPCServer) Start(securityLayer model.SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := s.server.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop marks the server as not serving and drains it. Open streams are cut
// once ctx is done.
func (s *GRPCServer) Stop(ctx context.Context) error {
	if s.health != nil {
		s.health.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		<-done
		return fmt.Errorf("graceful stop interrupted: %w", ctx.Err())
	}
}

// Address returns the configured listen address.
func (s *GRPCServer) Address() string {
	return s.addr
}
