package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/services"
)

func TestHealthzReportsLiveness(t *testing.T) {
	h := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
}

func TestReadyzReturnsDependencyReport(t *testing.T) {
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	svc := &stubSystemService{
		healthReportFunc: func(context.Context) (services.SystemReport, error) {
			return services.SystemReport{
				SystemHealthReport: domain.SystemHealthReport{
					Status: domain.HealthStatusOK,
					Checks: map[string]domain.SystemHealthCheck{
						"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
					},
					GeneratedAt: generated,
				},
				Version:   "1.4.2",
				CommitSHA: "abc1234",
				Uptime:    2 * time.Hour,
			}, nil
		},
	}
	h := NewHealthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
	if payload["version"] != "1.4.2" || payload["commit"] != "abc1234" {
		t.Fatalf("build metadata missing from payload: %v", payload)
	}
	checks, ok := payload["checks"].(map[string]any)
	if !ok {
		t.Fatalf("unexpected checks %v", payload["checks"])
	}
	firestore, ok := checks["firestore"].(map[string]any)
	if !ok || firestore["status"] != "ok" {
		t.Fatalf("unexpected firestore check %v", checks["firestore"])
	}
}

func TestReadyzFailingDependencyReturns503(t *testing.T) {
	svc := &stubSystemService{
		healthReportFunc: func(context.Context) (services.SystemReport, error) {
			return services.SystemReport{
				SystemHealthReport: domain.SystemHealthReport{
					Status: domain.HealthStatusError,
					Checks: map[string]domain.SystemHealthCheck{
						"redis": {Status: domain.HealthStatusError, Detail: "connection refused"},
					},
					GeneratedAt: time.Now().UTC(),
				},
			}, nil
		},
	}
	h := NewHealthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyzReportFailureReturns503(t *testing.T) {
	svc := &stubSystemService{
		healthReportFunc: func(context.Context) (services.SystemReport, error) {
			return services.SystemReport{}, errors.New("collect failed")
		},
	}
	h := NewHealthHandlers(svc)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["error"] != "health_check_failed" {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestReadyzWithoutSystemServiceDegradesToLiveness(t *testing.T) {
	h := NewHealthHandlers(nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
}
