// Package health reports store reachability through the gRPC health service.
package health

import (
	"context"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/gophaccount-server/internal/logger"
)

// ServiceName is the health service name of the account API. The empty
// name reports overall server health and follows the same status.
const ServiceName = "gophaccount.Account"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher pings the store on an interval and publishes the result.
type Watcher struct {
	server   *grpchealth.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
}

func NewWatcher(server *grpchealth.Server, pinger Pinger, interval time.Duration, logger *logger.Logger) *Watcher {
	return &Watcher{
		server:   server,
		pinger:   pinger,
		interval: interval,
		timeout:  interval / 2,
		logger:   logger,
	}
}

// Run checks once immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check pings the store once and updates the serving status.
func (w *Watcher) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := w.pinger.Ping(pingCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		w.logger.Warn("Health watcher: store ping failed",
			"error", err.Error())
	}

	w.server.SetServingStatus("", status)
	w.server.SetServingStatus(ServiceName, status)
	return status
}
