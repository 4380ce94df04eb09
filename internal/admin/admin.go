package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "snapcast"

// Check probes one dependency. A nil return means healthy.
type Check func(ctx context.Context) error

// Server exposes grpc.health.v1 for the web process. Status follows the
// result of the registered checks.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checks     map[string]Check
	logger     *slog.Logger
}

func NewServer(checks map[string]Check) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		checks:     checks,
		logger:     slog.With("component", "admin"),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Probe runs every check once and updates the reported status.
func (s *Server) Probe(ctx context.Context) bool {
	ok := true
	for name, check := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()
		if err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			ok = false
		}
	}

	if ok {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

// Serve probes on every interval tick and serves gRPC on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	s.Probe(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpcServer.GracefulStop()
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()

	s.logger.Info("admin gRPC server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// CheckHealth asks the admin server at addr for the status of service.
func CheckHealth(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check RPC failed: %w", err)
	}
	return resp.GetStatus(), nil
}
