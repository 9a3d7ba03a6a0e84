package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/localeats/api/internal/domain"
	"github.com/localeats/api/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemReport is a dependency health report annotated with build metadata.
type SystemReport struct {
	domain.SystemHealthReport

	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
}

// SystemService exposes readiness information for the health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemReport, error)
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service behind /healthz and /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemReport, error) {
	if ctx == nil {
		return SystemReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
	}

	return SystemReport{
		SystemHealthReport: report,
		Version:            s.build.Version,
		CommitSHA:          s.build.CommitSHA,
		Environment:        s.build.Environment,
		Uptime:             now.Sub(s.build.StartedAt.UTC()),
	}, nil
}
