package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnavailable  = "unavailable"
)

// storagePingTimeout bounds the storage check of the readiness probe.
const storagePingTimeout = 2 * time.Second

// HealthChecker serves the liveness and readiness probes.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker returns a checker that starts out ready. sc may be nil,
// in which case only the ready flag is checked.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness flag. The HTTP server clears it when it
// begins shutting down so load balancers drain first.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
	Storage string            `json:"storage,omitempty"`
	Users   *int64            `json:"users,omitempty"`
}

// checks runs every readiness check and reports whether all passed.
func (h *HealthChecker) checks(ctx context.Context) (map[string]string, bool) {
	checks := map[string]string{
		"ready":    healthStatusOK,
		"shutdown": healthStatusOK,
	}
	ok := true
	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}
	if h.sc == nil {
		return checks, ok
	}

	if h.sc.IsShutdown() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}
	pingCtx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if err := h.sc.Repository().Ping(pingCtx); err != nil {
		checks["storage"] = healthStatusUnavailable
		ok = false
	} else {
		checks["storage"] = healthStatusOK
	}
	return checks, ok
}

// RegisterHealthEndpoints registers the probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)
	mux.HandleFunc("GET /healthz/detailed", h.handleDetailed)
}

// handleLiveness answers as long as the process can serve HTTP.
func (h *HealthChecker) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
}

func (h *HealthChecker) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.checks(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
}

// handleDetailed adds uptime and the registered user count to the
// readiness checks.
func (h *HealthChecker) handleDetailed(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.checks(r.Context())
	resp := DetailedHealthResponse{
		Status:  healthStatusOK,
		Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
		Checks:  checks,
		Storage: checks["storage"],
	}
	if resp.Storage == healthStatusOK {
		if n, err := h.sc.Directory().CountAccounts(r.Context()); err == nil {
			resp.Users = &n
		}
	}

	status := http.StatusOK
	switch {
	case checks["shutdown"] == healthStatusShuttingDown:
		resp.Status = healthStatusShuttingDown
		status = http.StatusServiceUnavailable
	case !ok:
		resp.Status = healthStatusNotReady
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
