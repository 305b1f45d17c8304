package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
)

// Ensure HealthService implements the interface.
var _ driving.HealthService = (*HealthService)(nil)

// EmbeddingValidator creates a provider from settings and pings it.
type EmbeddingValidator func(ctx context.Context, settings *domain.EmbeddingSettings) error

// HealthService reports on the embedding provider, the GitHub quota, the
// database and stages left in progress by a dead process.
type HealthService struct {
	embedding  domain.EmbeddingSettings
	validate   EmbeddingValidator
	progress   driven.ProgressStore
	staleAfter time.Duration
	quota      driven.QuotaReporter
	dbPath     string
	now        func() time.Time
}

// HealthOption configures a HealthService.
type HealthOption func(*HealthService)

// WithQuotaReporter sets where the GitHub rate window is read from.
func WithQuotaReporter(q driven.QuotaReporter) HealthOption {
	return func(s *HealthService) {
		s.quota = q
	}
}

// WithDatabasePath records the database location shown in reports.
func WithDatabasePath(path string) HealthOption {
	return func(s *HealthService) {
		s.dbPath = path
	}
}

// WithHealthClock sets the clock used for staleness and quota resets.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(s *HealthService) {
		s.now = now
	}
}

// NewHealthService creates a health service. validate may be nil, in which
// case the embedding provider is reported unreachable.
func NewHealthService(
	embedding domain.EmbeddingSettings,
	validate EmbeddingValidator,
	progress driven.ProgressStore,
	staleAfter time.Duration,
	opts ...HealthOption,
) *HealthService {
	if staleAfter <= 0 {
		staleAfter = domain.DefaultSettings().Ingestion.StaleAfter
	}
	s := &HealthService{
		embedding:  embedding,
		validate:   validate,
		progress:   progress,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check builds a health report.
func (s *HealthService) Check(ctx context.Context) (*domain.HealthReport, error) {
	now := s.now()
	report := &domain.HealthReport{
		Embedding: domain.EmbeddingHealth{
			Provider: s.embedding.Provider,
			Model:    s.embedding.Model(),
		},
		DatabasePath: s.dbPath,
		CheckedAt:    now,
	}

	switch {
	case s.validate == nil:
		report.Embedding.Error = domain.ErrEmbeddingUnavailable.Error()
	default:
		if err := s.validate(ctx, &s.embedding); err != nil {
			report.Embedding.Error = err.Error()
		} else {
			report.Embedding.Reachable = true
		}
	}

	if s.quota != nil {
		q := s.quota.Quota()
		report.GitHubQuota = &q
	}

	stuck, err := s.stuckStages(ctx, now)
	if err != nil {
		return nil, err
	}
	report.StuckStages = stuck

	report.Healthy = report.Embedding.Reachable &&
		len(report.StuckStages) == 0 &&
		(report.GitHubQuota == nil || !report.GitHubQuota.Exhausted(now))
	if !report.Healthy {
		logger.Debug("Health check: embedding reachable=%t, %d stuck stages", report.Embedding.Reachable, len(stuck))
	}
	return report, nil
}

// stuckStages lists in-progress stages with no heartbeat for staleAfter.
func (s *HealthService) stuckStages(ctx context.Context, now time.Time) ([]domain.StuckStage, error) {
	if s.progress == nil {
		return nil, nil
	}
	list, err := s.progress.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	var stuck []domain.StuckStage
	for i := range list {
		p := &list[i]
		for _, st := range domain.Stages() {
			sp := p.Stage(st)
			if !sp.IsStale(now, s.staleAfter) {
				continue
			}
			last := sp.HeartbeatAt
			if last.IsZero() {
				last = sp.StartedAt
			}
			stuck = append(stuck, domain.StuckStage{
				Repository:    p.Repository,
				Stage:         st,
				RunID:         sp.RunID,
				LastHeartbeat: last,
			})
		}
	}
	return stuck, nil
}
