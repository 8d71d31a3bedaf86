package monitor

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

// HealthServiceName is the service reported by the gRPC health server.
const HealthServiceName = "hydro.monitor"

// GRPCHealth exposes grpc.health.v1 for orchestrators. The monitor is
// SERVING only while the signal stream is connected.
type GRPCHealth struct {
	srv *grpc.Server
	hs  *health.Server
	log *slog.Logger
}

func NewGRPCHealth(logger *slog.Logger) *GRPCHealth {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GRPCHealth{
		srv: grpc.NewServer(),
		hs:  health.NewServer(),
		log: logger.With("component", "grpc-health"),
	}
	healthpb.RegisterHealthServer(g.srv, g.hs)
	g.hs.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// OnState is meant to be registered as a wsconn state handler.
func (g *GRPCHealth) OnState(s wsconn.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s == wsconn.StateConnected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.hs.SetServingStatus(HealthServiceName, st)
	g.hs.SetServingStatus("", st)
}

func (g *GRPCHealth) Serve(lis net.Listener) error {
	g.log.Info("grpc health listening", "addr", lis.Addr().String())
	return g.srv.Serve(lis)
}

func (g *GRPCHealth) Stop() {
	g.hs.Shutdown()
	g.srv.GracefulStop()
}
