package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"resturant.app/internal/obs"
)

// HealthServiceName is the service name reported by the gRPC health server
// in addition to the overall "" entry.
const HealthServiceName = "resturant.auth"

// HealthMonitor drives the standard gRPC health service from the store
// probe.
type HealthMonitor struct {
	probe    ReadyProbe
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
}

// NewHealthMonitor polls probe every interval. Until the first poll the
// service reports NOT_SERVING.
func NewHealthMonitor(probe ReadyProbe, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m := &HealthMonitor{
		probe:    probe,
		server:   health.NewServer(),
		interval: interval,
		timeout:  2 * time.Second,
	}
	m.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return m
}

// Register attaches the health service to s.
func (m *HealthMonitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Server exposes the underlying health server.
func (m *HealthMonitor) Server() healthpb.HealthServer { return m.server }

// Check probes once and publishes the result.
func (m *HealthMonitor) Check(ctx context.Context) bool {
	ok := true
	if m.probe != nil {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := m.probe.Ping(ctx); err != nil {
			obs.Logger().WithError(err).Warn("readiness probe failed")
			ok = false
		}
	}
	if ok {
		m.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		m.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

// Run polls until ctx is done, then marks every service NOT_SERVING.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			obs.SetReady(false)
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *HealthMonitor) set(status healthpb.HealthCheckResponse_ServingStatus) {
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(HealthServiceName, status)
	obs.SetReady(status == healthpb.HealthCheckResponse_SERVING)
}
