package handler

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Pinger is satisfied by the database handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers liveness and readiness probes. Readiness turns
// false once shutdown has started so load balancers stop routing here
// before the listener closes.
type HealthHandler struct {
	db       Pinger
	resp     *Responder
	shutdown atomic.Bool
}

func NewHealthHandler(db Pinger, resp *Responder) *HealthHandler {
	return &HealthHandler{db: db, resp: resp}
}

type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
	Latency   string    `json:"latency,omitempty"`
}

// Liveness: GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	h.resp.OK(w, healthStatus{Status: "ok", Timestamp: time.Now().UTC()}, "")
}

// Readiness: GET /health/ready
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	if h.shutdown.Load() {
		h.resp.JSON(w, http.StatusServiceUnavailable, Envelope{
			Data:  healthStatus{Status: "shutting_down", Timestamp: now},
			Error: "shutting down",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	status := healthStatus{Status: "ok", Timestamp: now, Database: "up", Latency: time.Since(start).String()}

	if err != nil {
		status.Status = "degraded"
		status.Database = "down"
		h.resp.JSON(w, http.StatusServiceUnavailable, Envelope{Data: status, Error: "database unreachable"})
		return
	}
	h.resp.OK(w, status, "")
}

func (h *HealthHandler) SetShutdown(v bool) {
	h.shutdown.Store(v)
}
