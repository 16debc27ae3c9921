// Package health reports liveness and readiness over HTTP and the standard
// grpc.health.v1 service, both backed by the same serving state.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name registered for the notifier in the gRPC health
// server. The empty name reports overall server health.
const Service = "maison.checkout.Notifier"

// Pinger is a dependency checked on readiness (the store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker owns the serving state.
type Checker struct {
	grpc    *health.Server
	pinger  Pinger
	timeout time.Duration
	serving atomic.Bool
}

// New returns a Checker in the NOT_SERVING state.
func New(pinger Pinger) *Checker {
	c := &Checker{
		grpc:    health.NewServer(),
		pinger:  pinger,
		timeout: 2 * time.Second,
	}
	c.SetServing(false)
	return c
}

// Register adds the health service to s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.grpc)
}

// SetServing flips both the HTTP readiness and the gRPC status.
func (c *Checker) SetServing(ok bool) {
	c.serving.Store(ok)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	c.grpc.SetServingStatus("", status)
	c.grpc.SetServingStatus(Service, status)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.serving.Store(false)
	c.grpc.Shutdown()
}

// Liveness always answers 200 while the process can serve HTTP.
func (c *Checker) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness answers 200 only when serving and the store responds.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	if !c.serving.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if c.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()
		if err := c.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  "store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
