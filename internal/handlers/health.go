package handlers

import (
	"net/http"
	"time"

	"github.com/localeats/api/internal/platform/httpx"
	"github.com/localeats/api/internal/services"

	domain "github.com/localeats/api/internal/domain"
)

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	system services.SystemService
	start  time.Time
}

// NewHealthHandlers constructs health handlers. A nil system service degrades
// /readyz to the same static response as /healthz.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{
		system: system,
		start:  time.Now().UTC(),
	}
}

// Healthz reports process liveness only. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.start).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz probes dependencies through the system service. A failing dependency
// yields 503 so the instance drops out of rotation.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_check_failed", "unable to collect dependency health", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		checks[name] = entry
	}

	payload := map[string]any{
		"status":       string(report.Status),
		"checks":       checks,
		"generated_at": report.GeneratedAt.UTC().Format(time.RFC3339),
		"uptime":       report.Uptime.String(),
	}
	if report.Version != "" {
		payload["version"] = report.Version
	}
	if report.CommitSHA != "" {
		payload["commit"] = report.CommitSHA
	}
	if report.Environment != "" {
		payload["environment"] = report.Environment
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
