package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"moneta.app/internal/obs"
)

// GRPCServer exposes grpc.health.v1.Health backed by the readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	version   string
}

// NewGRPCServer creates the health service wrapper. Status starts as
// NOT_SERVING until the first Refresh.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: hs, readiness: r, version: version}
}

// Register attaches the health service to s.
func (g *GRPCServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, g.health)
}

// Refresh evaluates readiness and publishes the result.
func (g *GRPCServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := g.readiness.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		obs.Warn("readiness_failed", map[string]any{"err": err, "version": g.version})
	}
	g.health.SetServingStatus("", st)
	g.health.SetServingStatus(serviceName, st)
	return st
}

// Watch refreshes every interval until ctx ends, then marks the service as
// shutting down.
func (g *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	g.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			g.health.Shutdown()
			return
		case <-ticker.C:
			g.Refresh(ctx)
		}
	}
}
