package api

import (
	"SentinelQoS/internal/logger"
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// VanguardService is the gRPC health service name that tracks reasoner reachability.
const VanguardService = "vanguard"

// HealthProbe keeps the gRPC health status of the vanguard service in line
// with the reasoning service.
type HealthProbe struct {
	server   *health.Server
	vanguard VanguardAdmin
	interval time.Duration
}

// NewHealthProbe creates a probe. The overall status is SERVING from the start;
// the vanguard service starts NOT_SERVING until the first check.
func NewHealthProbe(vanguard VanguardAdmin, interval time.Duration) *HealthProbe {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(VanguardService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthProbe{server: hs, vanguard: vanguard, interval: interval}
}

// Server returns the health service implementation.
func (p *HealthProbe) Server() *health.Server {
	return p.server
}

// Check queries the reasoner once and updates the vanguard status.
func (p *HealthProbe) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	h := p.vanguard.Health(ctx)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.Enabled && h.Reachable && h.ModelPresent {
		status = healthpb.HealthCheckResponse_SERVING
	}
	p.server.SetServingStatus(VanguardService, status)
	logger.WithFields(logrus.Fields{
		"reachable":     h.Reachable,
		"model_present": h.ModelPresent,
		"status":        status.String(),
	}).Debug("Vanguard health checked")
	return status
}

// Run checks periodically until ctx is done, then marks every service NOT_SERVING.
func (p *HealthProbe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ticker.C:
			p.Check(ctx)
		case <-ctx.Done():
			p.server.Shutdown()
			return
		}
	}
}

// ServeGRPC serves the health service on addr until ctx is done.
func ServeGRPC(ctx context.Context, addr string, probe *HealthProbe) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveHealth(ctx, lis, probe)
}

func serveHealth(ctx context.Context, lis net.Listener, probe *HealthProbe) error {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, probe.Server())

	go func() {
		<-ctx.Done()
		logger.Log().Info("gRPC server shutting down...")
		s.GracefulStop()
	}()

	logger.Log().Infof("gRPC server listening at %v", lis.Addr())
	if err := s.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
