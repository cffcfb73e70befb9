package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"taskora.org/internal/obs"
)

const serviceName = "taskora-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// NewGRPCServer exposes the standard grpc_health_v1 service backed by the
// same readiness probe as /readyz. A background loop keeps the serving
// status in sync with the probe.
func NewGRPCServer(rp readinessChecker, pollInterval time.Duration) (*grpc.Server, func()) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	refresh := func(ctx context.Context) {
		if err := rp.Check(ctx); err != nil {
			obs.SetReady(false)
			hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		obs.SetReady(true)
		hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	}

	ctx, cancel := context.WithCancel(context.Background())
	refresh(ctx)
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh(ctx)
			}
		}
	}()

	stop := func() {
		cancel()
		hs.Shutdown()
		srv.GracefulStop()
	}
	return srv, stop
}
