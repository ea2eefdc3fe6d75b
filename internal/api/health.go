package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/gita-reflect/internal/health"
)

// StorageInfo describes the storage backend chosen at startup.
type StorageInfo struct {
	Driver         string
	Fallback       bool
	FallbackReason error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	probe   *health.Probe
	storage StorageInfo
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(probe *health.Probe, storage StorageInfo) *HealthHandler {
	return &HealthHandler{probe: probe, storage: storage}
}

// Health returns the health status of the API and its dependencies. It
// serves the probe's cached result and only checks inline before the first
// probe run.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "healthy",
		"fallback": h.storage.Fallback,
	}
	checks := map[string]string{"api": "ok", "storage": h.storage.Driver}
	statusCode := http.StatusOK

	st := h.probe.Last()
	if st.CheckedAt.IsZero() {
		st = h.probe.Check(r.Context())
	}
	if st.Healthy {
		checks["database"] = "ok"
	} else {
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	}
	if h.storage.Fallback && h.storage.FallbackReason != nil {
		status["fallbackReason"] = h.storage.FallbackReason.Error()
	}
	status["checks"] = checks

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
