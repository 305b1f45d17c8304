package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
)

var testRepo = domain.RepositoryID{Owner: "acme", Name: "widgets"}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	plan      *domain.StagePlan
	progress  *domain.IngestionProgress
	summaries []domain.RepositorySummary
	clear     *domain.ClearResult
	err       error

	// startErr fails StartStage for the listed stages.
	startErr map[domain.Stage]error

	// results are returned by WaitStage per stage; pending stages report a
	// running snapshot and done=false.
	results map[domain.Stage]*domain.StageResult
	pending map[domain.Stage]bool
	waitErr error
	waited  []time.Duration

	cancelErr error
	started   []domain.Stage
	limits    []domain.Limits
	confirmed bool
}

func (m *mockIngestionService) StartIngestion(_ context.Context, _ domain.RepositoryID) (*domain.StagePlan, error) {
	return m.plan, m.err
}

func (m *mockIngestionService) IngestStage(
	_ context.Context, _ domain.RepositoryID, stage domain.Stage, _ domain.Limits, _ driving.ProgressFunc,
) (*domain.StageResult, error) {
	return m.results[stage], m.err
}

func (m *mockIngestionService) StartStage(
	_ context.Context, _ domain.RepositoryID, stage domain.Stage, limits domain.Limits,
) (string, error) {
	if err := m.startErr[stage]; err != nil {
		return "", err
	}
	m.started = append(m.started, stage)
	m.limits = append(m.limits, limits)
	return "run-" + stage.String(), nil
}

func (m *mockIngestionService) WaitStage(
	_ context.Context, repo domain.RepositoryID, runID string, maxWait time.Duration,
) (*domain.StageResult, bool, error) {
	m.waited = append(m.waited, maxWait)
	if m.waitErr != nil {
		return nil, false, m.waitErr
	}
	stage := m.started[len(m.started)-1]
	if m.pending[stage] {
		return &domain.StageResult{
			Repository: repo,
			Stage:      stage,
			Status:     domain.StatusInProgress,
			RunID:      runID,
			Running:    true,
		}, false, nil
	}
	if res, ok := m.results[stage]; ok {
		return res, true, nil
	}
	return &domain.StageResult{Repository: repo, Stage: stage, Status: domain.StatusComplete, RunID: runID}, true, nil
}

func (m *mockIngestionService) CancelStage(_ context.Context, _ domain.RepositoryID) error {
	return m.cancelErr
}

func (m *mockIngestionService) IngestAll(
	_ context.Context, _ domain.RepositoryID, _ domain.Limits, _ driving.ProgressFunc,
) ([]domain.StageResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) RetryFailed(
	_ context.Context, _ domain.RepositoryID, _ domain.Limits, _ driving.ProgressFunc,
) ([]domain.StageResult, error) {
	return nil, m.err
}

func (m *mockIngestionService) GetStatus(_ context.Context, _ domain.RepositoryID) (*domain.IngestionProgress, error) {
	if m.progress == nil && m.err == nil {
		return nil, domain.ErrNotFound
	}
	return m.progress, m.err
}

func (m *mockIngestionService) ListRepositories(_ context.Context) ([]domain.RepositorySummary, error) {
	return m.summaries, m.err
}

func (m *mockIngestionService) ClearRepository(
	_ context.Context, _ domain.RepositoryID, confirm bool,
) (*domain.ClearResult, error) {
	m.confirmed = confirm
	if !confirm {
		return nil, domain.ErrConfirmationRequired
	}
	return m.clear, m.err
}

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	matches []domain.QueryMatch
	err     error

	collection string
	source     domain.SourceType
	k          int
}

func (m *mockQueryService) Query(_ context.Context, collection, _ string, k int) ([]domain.QueryMatch, error) {
	m.collection = collection
	m.k = k
	return m.matches, m.err
}

func (m *mockQueryService) QueryRepository(
	_ context.Context, repo domain.RepositoryID, source domain.SourceType, _ string, k int,
) ([]domain.QueryMatch, error) {
	m.collection = domain.CollectionName(repo, source)
	m.source = source
	m.k = k
	return m.matches, m.err
}

// mockHealthService implements driving.HealthService for testing.
type mockHealthService struct {
	report *domain.HealthReport
	err    error
}

func (m *mockHealthService) Check(context.Context) (*domain.HealthReport, error) {
	return m.report, m.err
}
