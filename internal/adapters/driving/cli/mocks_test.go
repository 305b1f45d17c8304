package cli

import (
	"bytes"
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
)

var testRepo = domain.RepositoryID{Owner: "acme", Name: "widgets"}

// mockIngestionService implements driving.IngestionService for testing.
type mockIngestionService struct {
	plan      *domain.StagePlan
	result    *domain.StageResult
	results   []domain.StageResult
	progress  *domain.IngestionProgress
	summaries []domain.RepositorySummary
	err       error

	limits  domain.Limits
	stage   domain.Stage
	cleared bool
	events  []driving.ProgressEvent
}

func (m *mockIngestionService) StartIngestion(_ context.Context, _ domain.RepositoryID) (*domain.StagePlan, error) {
	return m.plan, m.err
}

func (m *mockIngestionService) IngestStage(
	_ context.Context, repo domain.RepositoryID, stage domain.Stage, limits domain.Limits, progress driving.ProgressFunc,
) (*domain.StageResult, error) {
	m.stage = stage
	m.limits = limits
	if progress != nil {
		progress(driving.ProgressEvent{Repository: repo, Stage: stage, Phase: driving.PhaseFetch, Processed: 1})
	}
	return m.result, m.err
}

func (m *mockIngestionService) StartStage(context.Context, domain.RepositoryID, domain.Stage, domain.Limits) (string, error) {
	return "", m.err
}

func (m *mockIngestionService) WaitStage(
	context.Context, domain.RepositoryID, string, time.Duration,
) (*domain.StageResult, bool, error) {
	return m.result, true, m.err
}

func (m *mockIngestionService) CancelStage(context.Context, domain.RepositoryID) error {
	return m.err
}

func (m *mockIngestionService) IngestAll(
	_ context.Context, _ domain.RepositoryID, limits domain.Limits, _ driving.ProgressFunc,
) ([]domain.StageResult, error) {
	m.limits = limits
	return m.results, m.err
}

func (m *mockIngestionService) RetryFailed(
	_ context.Context, _ domain.RepositoryID, limits domain.Limits, _ driving.ProgressFunc,
) ([]domain.StageResult, error) {
	m.limits = limits
	return m.results, m.err
}

func (m *mockIngestionService) GetStatus(_ context.Context, _ domain.RepositoryID) (*domain.IngestionProgress, error) {
	if m.progress == nil && m.err == nil {
		return nil, domain.ErrNotFound
	}
	return m.progress, m.err
}

func (m *mockIngestionService) ListRepositories(context.Context) ([]domain.RepositorySummary, error) {
	return m.summaries, m.err
}

func (m *mockIngestionService) ClearRepository(
	_ context.Context, repo domain.RepositoryID, confirm bool,
) (*domain.ClearResult, error) {
	if !confirm {
		return nil, domain.ErrConfirmationRequired
	}
	m.cleared = true
	return &domain.ClearResult{
		Repository:         repo,
		DeletedCollections: []string{domain.CollectionName(repo, domain.SourceDocumentation)},
		ProgressDeleted:    true,
	}, m.err
}

// mockQueryService implements driving.QueryService for testing.
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

// setupTestServices installs mock services and resets command flags.
func setupTestServices(ingestion *mockIngestionService, query *mockQueryService) func() {
	oldIngestion, oldQuery := ingestionService, queryService
	ingestionService, queryService = nil, nil
	if ingestion != nil {
		ingestionService = ingestion
	}
	if query != nil {
		queryService = query
	}
	return func() {
		ingestionService, queryService = oldIngestion, oldQuery
		ingestMaxIssues, ingestMaxPRs, ingestPRBudget = 0, 0, 0
		statusJSON, listJSON, clearConfirm = false, false, false
		queryRepository, querySource, queryCollection, queryLimit, queryJSON = "", "docs", "", 5, false
		rootCmd.SetArgs(nil)
	}
}

// execute runs the root command with args and returns its output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// mockHealthService implements driving.HealthService for testing.
type mockHealthService struct {
	report *domain.HealthReport
	err    error
}

func (m *mockHealthService) Check(context.Context) (*domain.HealthReport, error) {
	return m.report, m.err
}
