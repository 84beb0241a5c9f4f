// Package health serves liveness and readiness probes next to the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"tradecouncil/internal/workers"
	"tradecouncil/pkg/logger"
)

// Checker is a store that can report its connectivity
type Checker interface {
	Health(ctx context.Context) error
}

// WorkerReporter exposes per-worker run health
type WorkerReporter interface {
	Health() map[string]workers.WorkerHealth
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Checker
	workers     WorkerReporter
	startTime   time.Time
	serviceName string
}

// New creates a health handler. Nil checkers are ignored; reporter may be nil.
func New(log *logger.Logger, serviceName string, checks map[string]Checker, reporter WorkerReporter) *Handler {
	live := make(map[string]Checker, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &Handler{
		log:         log,
		checks:      live,
		workers:     reporter,
		startTime:   time.Now(),
		serviceName: serviceName,
	}
}

// Status is the response body of the readiness and detailed endpoints
type Status struct {
	Status    string                     `json:"status"` // healthy, degraded, unhealthy
	Service   string                     `json:"service"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Workers   map[string]WorkerStatus    `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single store
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WorkerStatus is the JSON view of workers.WorkerHealth
type WorkerStatus struct {
	Enabled           bool   `json:"enabled"`
	LastRun           string `json:"last_run,omitempty"`
	LastSuccess       string `json:"last_success,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	ErrorCount        int64  `json:"error_count"`
	RunCount          int64  `json:"run_count"`
	ConsecutiveErrors int64  `json:"consecutive_errors"`
	AvgDuration       string `json:"avg_duration,omitempty"`
}

// FailingRuns is the number of consecutive failed runs after which a worker
// degrades the detailed status
const FailingRuns = 3

// Register mounts the probes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health/live", h.HandleLiveness)
	mux.HandleFunc("/health/ready", h.HandleReadiness)
	mux.HandleFunc("/health", h.HandleHealth)
}

// HandleLiveness returns 200 OK while the process runs
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any store is unreachable
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.status(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth reports every check plus worker state. Partial failure is
// degraded and still answers 200.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := h.status(ctx)
	if h.workers != nil {
		status.Workers = workerStatuses(h.workers.Health())
		for name, ws := range status.Workers {
			if ws.ConsecutiveErrors >= FailingRuns && status.Status == "healthy" {
				status.Status = "degraded"
				h.log.Warnw("Worker keeps failing", "worker", name, "consecutive_errors", ws.ConsecutiveErrors)
			}
		}
	}
	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handler) status(ctx context.Context) Status {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]ComponentHealth, len(names))
	healthy := 0
	for _, name := range names {
		c := h.check(ctx, name, h.checks[name])
		if c.Status == "healthy" {
			healthy++
		}
		checks[name] = c
	}

	state := "healthy"
	switch {
	case len(names) > 0 && healthy == 0:
		state = "unhealthy"
	case healthy < len(names):
		state = "degraded"
	}

	return Status{
		Status:    state,
		Service:   h.serviceName,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
}

func (h *Handler) check(ctx context.Context, name string, c Checker) ComponentHealth {
	start := time.Now()
	err := c.Health(ctx)
	elapsed := time.Since(start)
	if err != nil {
		h.log.Warnw("Health check failed", "store", name, "error", err, "elapsed", elapsed)
		return ComponentHealth{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
	}
	return ComponentHealth{Status: "healthy", ResponseTime: elapsed.String()}
}

func workerStatuses(in map[string]workers.WorkerHealth) map[string]WorkerStatus {
	out := make(map[string]WorkerStatus, len(in))
	for name, wh := range in {
		ws := WorkerStatus{
			Enabled:           wh.Enabled,
			ErrorCount:        wh.ErrorCount,
			RunCount:          wh.RunCount,
			ConsecutiveErrors: wh.ConsecutiveErrors,
		}
		if wh.AvgDuration > 0 {
			ws.AvgDuration = wh.AvgDuration.String()
		}
		if !wh.LastRun.IsZero() {
			ws.LastRun = wh.LastRun.UTC().Format(time.RFC3339)
		}
		if !wh.LastSuccess.IsZero() {
			ws.LastSuccess = wh.LastSuccess.UTC().Format(time.RFC3339)
		}
		if wh.LastError != nil {
			ws.LastError = wh.LastError.Error()
		}
		out[name] = ws
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
