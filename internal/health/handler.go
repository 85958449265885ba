// AngelaMos | 2026
// handler.go

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

type Checker interface {
	Ping(ctx context.Context) error
}

// BacklogChecker reports how many side-effect events are waiting to be
// consumed. A growing backlog means provisioning is falling behind even
// though the database and Redis answer pings.
type BacklogChecker interface {
	Backlog(ctx context.Context) (int64, error)
}

const backlogUnhealthyThreshold = 1000

type Handler struct {
	db       Checker
	redis    Checker
	outbox   BacklogChecker
	ready    atomic.Bool
	shutdown atomic.Bool
}

func NewHandler(db, redis Checker, outbox BacklogChecker) *Handler {
	h := &Handler{
		db:     db,
		redis:  redis,
		outbox: outbox,
	}
	h.ready.Store(true)
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/livez", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "shutting_down",
		})
		return
	}

	h.writeStatus(w, http.StatusOK, StatusResponse{
		Status: "ok",
	})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "shutting_down",
		})
		return
	}

	if !h.ready.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "not_ready",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.runHealthChecks(ctx)

	allHealthy := true
	for _, check := range checks {
		if !check.Healthy {
			allHealthy = false
			break
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.writeStatus(w, statusCode, ReadinessResponse{
		Status: status,
		Checks: checks,
	})
}

func (h *Handler) runHealthChecks(ctx context.Context) []HealthCheck {
	var wg sync.WaitGroup
	checks := make([]HealthCheck, 3)

	wg.Add(3)

	go func() {
		defer wg.Done()
		checks[0] = h.checkPing(ctx, "database", h.db)
	}()

	go func() {
		defer wg.Done()
		checks[1] = h.checkPing(ctx, "redis", h.redis)
	}()

	go func() {
		defer wg.Done()
		checks[2] = h.checkOutbox(ctx)
	}()

	wg.Wait()
	return checks
}

func (h *Handler) checkPing(
	ctx context.Context,
	name string,
	checker Checker,
) HealthCheck {
	check := HealthCheck{
		Name:    name,
		Healthy: true,
	}

	if checker == nil {
		check.Healthy = false
		check.Message = name + " checker not configured"
		return check
	}

	start := time.Now()
	err := checker.Ping(ctx)
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Healthy = false
		check.Message = "ping failed"
	}

	return check
}

func (h *Handler) checkOutbox(ctx context.Context) HealthCheck {
	check := HealthCheck{
		Name:    "outbox",
		Healthy: true,
	}

	if h.outbox == nil {
		check.Healthy = false
		check.Message = "outbox checker not configured"
		return check
	}

	start := time.Now()
	backlog, err := h.outbox.Backlog(ctx)
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Healthy = false
		check.Message = "backlog query failed"
		return check
	}

	check.Message = fmt.Sprintf("%d pending", backlog)
	if backlog > backlogUnhealthyThreshold {
		check.Healthy = false
	}

	return check
}

func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) SetShutdown(shutdown bool) {
	h.shutdown.Store(shutdown)
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response
	_ = json.NewEncoder(w).Encode(data)
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ReadinessResponse struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
}

type HealthCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}
