// Package health tracks storage reachability for the HTTP and gRPC health endpoints.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status.
const ServiceName = "reflect.Conversations"

const defaultCheckTimeout = 5 * time.Second

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the result of the latest check.
type Status struct {
	Healthy   bool
	Err       error
	CheckedAt time.Time
}

// Probe periodically pings storage and publishes the result.
type Probe struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	grpc     *grpchealth.Server

	mu   sync.RWMutex
	last Status
}

// NewProbe creates a probe for p. The gRPC health status starts as
// NOT_SERVING until the first check.
func NewProbe(p Pinger, interval time.Duration) *Probe {
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Probe{
		pinger:   p,
		interval: interval,
		timeout:  defaultCheckTimeout,
		grpc:     hs,
	}
}

// Check pings the dependency now and records the result.
func (p *Probe) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	st := Status{Healthy: err == nil, Err: err, CheckedAt: time.Now()}

	p.mu.Lock()
	changed := p.last.CheckedAt.IsZero() || p.last.Healthy != st.Healthy
	p.last = st
	p.mu.Unlock()

	serving := healthpb.HealthCheckResponse_SERVING
	if !st.Healthy {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.grpc.SetServingStatus("", serving)
	p.grpc.SetServingStatus(ServiceName, serving)

	if changed {
		if st.Healthy {
			slog.Info("Storage health check passing")
		} else {
			slog.Warn("Storage health check failing", "error", err)
		}
	}
	return st
}

// Last returns the most recent status.
func (p *Probe) Last() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Start runs an immediate check and then one per interval until ctx is done.
func (p *Probe) Start(ctx context.Context) {
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Health probe started", "interval", p.interval)
		for {
			select {
			case <-ticker.C:
				p.Check(ctx)
			case <-ctx.Done():
				slog.Info("Health probe shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Register installs the gRPC health service on s.
func (p *Probe) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, p.grpc)
}

// Shutdown marks every service NOT_SERVING, for use before stopping servers.
func (p *Probe) Shutdown() {
	p.grpc.Shutdown()
}
