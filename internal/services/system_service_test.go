package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/localeats/api/internal/domain"
)

type stubHealthRepository struct {
	collectFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.collectFunc(ctx)
}

func TestSystemServiceHealthReportMergesBuildInfo(t *testing.T) {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{
			collectFunc: func(context.Context) (domain.SystemHealthReport, error) {
				return domain.SystemHealthReport{
					Status: domain.HealthStatusOK,
					Checks: map[string]domain.SystemHealthCheck{
						"firestore": {Status: domain.HealthStatusOK, Detail: "ok"},
					},
					GeneratedAt: now,
				}, nil
			},
		},
		Clock: func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.4.2",
			CommitSHA:   "abc1234",
			Environment: "staging",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %s", report.Status)
	}
	if report.Version != "1.4.2" || report.CommitSHA != "abc1234" || report.Environment != "staging" {
		t.Fatalf("build info not merged: %+v", report)
	}
	if report.Uptime != 2*time.Hour {
		t.Fatalf("expected 2h uptime, got %s", report.Uptime)
	}
	if _, ok := report.Checks["firestore"]; !ok {
		t.Fatalf("expected firestore check to survive, got %v", report.Checks)
	}
}

func TestSystemServiceHealthReportSurfacesCollectErrors(t *testing.T) {
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{
			collectFunc: func(context.Context) (domain.SystemHealthReport, error) {
				return domain.SystemHealthReport{}, errors.New("probe wiring broken")
			},
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	if _, err := service.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected collect error to surface")
	}
}

func TestNewSystemServiceRequiresHealthRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when health repository missing")
	}
}
