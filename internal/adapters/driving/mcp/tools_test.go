package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

func newTestServer(t *testing.T, ingestion *mockIngestionService, query *mockQueryService) *Server {
	t.Helper()
	ports := &Ports{Ingestion: ingestion, ResponseBudget: time.Minute}
	if query != nil {
		ports.Query = query
	}
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleStartIngestion(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the plan", func(t *testing.T) {
		progress := domain.NewIngestionProgress(testRepo, time.Now())
		plan := &domain.StagePlan{
			Repository:    testRepo,
			DefaultBranch: "main",
			NextStage:     domain.StageDocs,
			Collections:   make(map[domain.Stage]string),
		}
		for _, st := range domain.Stages() {
			plan.Stages = append(plan.Stages, progress.Stage(st))
			plan.Collections[st] = domain.CollectionName(testRepo, st.SourceType())
		}
		server := newTestServer(t, &mockIngestionService{plan: plan}, nil)

		_, output, err := server.handleStartIngestion(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.Equal(t, "acme/widgets", output.Repository)
		assert.Equal(t, "main", output.DefaultBranch)
		assert.Equal(t, "docs", output.NextStage)
		assert.Equal(t, []string{"docs", "code", "issues", "pull_requests"}, output.Stages)
		assert.Equal(t, domain.CollectionName(testRepo, domain.SourceIssue), output.Collections["issues"])
		assert.Equal(t, "not_started", output.Status.OverallStatus)
		assert.Len(t, output.Status.Stages, 4)
		assert.Empty(t, output.Status.Collections)
	})

	t.Run("invalid repository", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleStartIngestion(ctx, nil, RepositoryInput{Repository: "widgets"})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unreachable repository carries a hint", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{err: domain.ErrSourceUnavailable}, nil)

		_, _, err := server.handleStartIngestion(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
		assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	})
}

func TestServer_handleIngestStage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the finished result", func(t *testing.T) {
		mock := &mockIngestionService{
			results: map[domain.Stage]*domain.StageResult{
				domain.StageIssues: {
					Repository:        testRepo,
					Stage:             domain.StageIssues,
					Status:            domain.StatusComplete,
					ChunksStored:      5,
					DocumentsStored:   5,
					NewDocuments:      5,
					TerminationReason: domain.TerminationCollectedEnough,
					Collection:        domain.CollectionName(testRepo, domain.SourceIssue),
				},
			},
		}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestStage(ctx, nil, IngestStageInput{
			Repository: "acme/widgets",
			Stage:      "issues",
			MaxIssues:  5,
		})

		require.NoError(t, err)
		assert.Equal(t, "complete", output.Status)
		assert.Equal(t, 5, output.DocumentsStored)
		assert.Equal(t, domain.TerminationCollectedEnough.String(), output.TerminationReason)
		assert.False(t, output.Running)
		require.Len(t, mock.limits, 1)
		assert.Equal(t, 5, mock.limits[0].MaxIssues)
	})

	t.Run("accepts stage aliases and passes the pr budget", func(t *testing.T) {
		mock := &mockIngestionService{}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestStage(ctx, nil, IngestStageInput{
			Repository:   "acme/widgets",
			Stage:        "prs",
			MaxPRs:       3,
			PRBudgetSecs: 30,
		})

		require.NoError(t, err)
		assert.Equal(t, "pull_requests", output.Stage)
		assert.Equal(t, []domain.Stage{domain.StagePullRequests}, mock.started)
		assert.Equal(t, 3, mock.limits[0].MaxPRs)
		assert.Equal(t, 30*time.Second, mock.limits[0].WallClockBudget)
	})

	t.Run("returns a running snapshot past the budget", func(t *testing.T) {
		mock := &mockIngestionService{pending: map[domain.Stage]bool{domain.StageCode: true}}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestStage(ctx, nil, IngestStageInput{
			Repository:     "acme/widgets",
			Stage:          "code",
			MaxWaitSeconds: 5,
		})

		require.NoError(t, err)
		assert.True(t, output.Running)
		assert.Equal(t, "run-code", output.RunID)
		assert.Equal(t, "in_progress", output.Status)
		assert.Equal(t, []time.Duration{5 * time.Second}, mock.waited)
	})

	t.Run("held repository is reported, not raised", func(t *testing.T) {
		mock := &mockIngestionService{
			startErr: map[domain.Stage]error{domain.StageDocs: domain.ErrStageInProgress},
		}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestStage(ctx, nil, IngestStageInput{Repository: "acme/widgets", Stage: "docs"})

		require.NoError(t, err)
		assert.Equal(t, "in_progress", output.Status)
		assert.Contains(t, output.Error, "stage in progress")
		assert.Contains(t, output.Suggestion, "get_status")
	})

	t.Run("denied stage is reported as failed", func(t *testing.T) {
		mock := &mockIngestionService{
			startErr: map[domain.Stage]error{domain.StageDocs: domain.ErrActionNotPermitted},
		}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestStage(ctx, nil, IngestStageInput{Repository: "acme/widgets", Stage: "docs"})

		require.NoError(t, err)
		assert.Equal(t, "failed", output.Status)
		assert.Equal(t, domain.CollectionName(testRepo, domain.SourceDocumentation), output.Collection)
	})

	t.Run("unknown stage", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleIngestStage(ctx, nil, IngestStageInput{Repository: "acme/widgets", Stage: "wiki"})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("wait failure", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{waitErr: domain.ErrNotFound}, nil)

		_, _, err := server.handleIngestStage(ctx, nil, IngestStageInput{Repository: "acme/widgets", Stage: "docs"})

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleIngestAll(t *testing.T) {
	ctx := context.Background()

	t.Run("runs every stage in order", func(t *testing.T) {
		mock := &mockIngestionService{}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestAll(ctx, nil, IngestAllInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.Equal(t, domain.Stages(), mock.started)
		assert.Len(t, output.Results, 4)
		assert.False(t, output.Running)
		assert.Empty(t, output.NextStage)
	})

	t.Run("continues past a failed stage", func(t *testing.T) {
		mock := &mockIngestionService{
			results: map[domain.Stage]*domain.StageResult{
				domain.StageCode: {Repository: testRepo, Stage: domain.StageCode, Status: domain.StatusFailed, Error: "boom"},
			},
		}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestAll(ctx, nil, IngestAllInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		require.Len(t, output.Results, 4)
		assert.Equal(t, "failed", output.Results[1].Status)
		assert.Equal(t, "complete", output.Results[3].Status)
	})

	t.Run("stops at a stage still running", func(t *testing.T) {
		mock := &mockIngestionService{pending: map[domain.Stage]bool{domain.StageIssues: true}}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestAll(ctx, nil, IngestAllInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.Len(t, output.Results, 3)
		assert.True(t, output.Running)
		assert.Equal(t, "run-issues", output.RunID)
		assert.Equal(t, "issues", output.NextStage)
		assert.Contains(t, output.Message, "skip_complete")
	})

	t.Run("skips complete stages", func(t *testing.T) {
		progress := domain.NewIngestionProgress(testRepo, time.Now())
		docs := progress.Stages[domain.StageDocs]
		docs.Status = domain.StatusComplete
		progress.Stages[domain.StageDocs] = docs
		mock := &mockIngestionService{progress: progress}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleIngestAll(ctx, nil, IngestAllInput{Repository: "acme/widgets", SkipComplete: true})

		require.NoError(t, err)
		assert.Equal(t, []domain.Stage{domain.StageCode, domain.StageIssues, domain.StagePullRequests}, mock.started)
		assert.Len(t, output.Results, 3)
	})

	t.Run("invalid repository", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleIngestAll(ctx, nil, IngestAllInput{Repository: ""})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestServer_handleGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns progress", func(t *testing.T) {
		progress := domain.NewIngestionProgress(testRepo, time.Now())
		progress.DefaultBranch = "main"
		docs := progress.Stages[domain.StageDocs]
		docs.Status = domain.StatusComplete
		docs.DocumentsStored = 3
		docs.ChunksStored = 7
		progress.Stages[domain.StageDocs] = docs
		server := newTestServer(t, &mockIngestionService{progress: progress}, nil)

		_, output, err := server.handleGetStatus(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.Equal(t, "in_progress", output.OverallStatus)
		assert.InDelta(t, 25.0, output.CompletionPercentage, 0.001)
		assert.Equal(t, 3, output.TotalDocuments)
		assert.Equal(t, 7, output.TotalChunks)
		assert.Equal(t, "code", output.NextStage)
		assert.Equal(t, []string{domain.CollectionName(testRepo, domain.SourceDocumentation)}, output.Collections)
	})

	t.Run("unknown repository", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleGetStatus(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "start_ingestion")
	})
}

func TestServer_handleListRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("lists repositories", func(t *testing.T) {
		mock := &mockIngestionService{
			summaries: []domain.RepositorySummary{
				{Repository: testRepo, OverallStatus: domain.StatusComplete, Completion: 100, TotalDocuments: 12},
			},
		}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleListRepositories(ctx, nil, struct{}{})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, "acme/widgets", output.Repositories[0].Repository)
		assert.Equal(t, "complete", output.Repositories[0].OverallStatus)
		assert.Empty(t, output.Repositories[0].NextStage)
	})

	t.Run("store failure", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{err: errors.New("disk gone")}, nil)

		_, _, err := server.handleListRepositories(ctx, nil, struct{}{})

		assert.Error(t, err)
	})
}

func TestServer_handleClearRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("requires confirmation", func(t *testing.T) {
		mock := &mockIngestionService{}
		server := newTestServer(t, mock, nil)

		_, _, err := server.handleClearRepository(ctx, nil, ClearInput{Repository: "acme/widgets"})

		assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
		assert.False(t, mock.confirmed)
	})

	t.Run("clears", func(t *testing.T) {
		mock := &mockIngestionService{clear: &domain.ClearResult{Repository: testRepo, ProgressDeleted: true}}
		server := newTestServer(t, mock, nil)

		_, output, err := server.handleClearRepository(ctx, nil, ClearInput{Repository: "acme/widgets", Confirm: true})

		require.NoError(t, err)
		assert.True(t, output.ProgressDeleted)
		assert.NotNil(t, output.DeletedCollections)
	})
}

func TestServer_handleCancelIngestion(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, output, err := server.handleCancelIngestion(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.True(t, output.Cancelled)
	})

	t.Run("nothing running", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{cancelErr: domain.ErrNotFound}, nil)

		_, output, err := server.handleCancelIngestion(ctx, nil, RepositoryInput{Repository: "acme/widgets"})

		require.NoError(t, err)
		assert.False(t, output.Cancelled)
		assert.NotEmpty(t, output.Message)
	})
}

func TestServer_handleSimilarityQuery(t *testing.T) {
	ctx := context.Background()
	matches := []domain.QueryMatch{
		{ID: "a", Text: "install with go get", Score: 0.9, Metadata: map[string]any{"path": "README.md"}},
	}

	t.Run("queries a named collection", func(t *testing.T) {
		query := &mockQueryService{matches: matches}
		server := newTestServer(t, &mockIngestionService{}, query)

		_, output, err := server.handleSimilarityQuery(ctx, nil, QueryInput{Query: "install", Collection: "docs_col"})

		require.NoError(t, err)
		assert.Equal(t, "docs_col", query.collection)
		assert.Equal(t, defaultQueryResults, query.k)
		assert.Equal(t, 1, output.Count)
		assert.Equal(t, "README.md", output.Matches[0].Metadata["path"])
	})

	t.Run("queries by repository and stage alias", func(t *testing.T) {
		query := &mockQueryService{matches: matches}
		server := newTestServer(t, &mockIngestionService{}, query)

		_, output, err := server.handleSimilarityQuery(ctx, nil, QueryInput{
			Query:      "install",
			Repository: "acme/widgets",
			Source:     "prs",
			K:          3,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.SourcePullRequest, query.source)
		assert.Equal(t, 3, query.k)
		assert.Equal(t, domain.CollectionName(testRepo, domain.SourcePullRequest), output.Collection)
	})

	t.Run("unknown source", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, &mockQueryService{})

		_, _, err := server.handleSimilarityQuery(ctx, nil, QueryInput{Query: "x", Repository: "acme/widgets", Source: "wiki"})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("no embedding provider", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleSimilarityQuery(ctx, nil, QueryInput{Query: "x", Collection: "c"})

		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("mismatch carries a hint", func(t *testing.T) {
		query := &mockQueryService{err: domain.ErrEmbeddingProviderMismatch}
		server := newTestServer(t, &mockIngestionService{}, query)

		_, _, err := server.handleSimilarityQuery(ctx, nil, QueryInput{Query: "x", Collection: "c"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "clear the repository")
	})
}

func TestServer_handleHealth(t *testing.T) {
	ctx := context.Background()
	heartbeat := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("reports every component", func(t *testing.T) {
		report := &domain.HealthReport{
			Embedding:    domain.EmbeddingHealth{Provider: domain.ProviderLocal, Model: "nomic-embed-text", Error: "connection refused"},
			GitHubQuota:  &domain.APIQuota{Limit: 5000, Remaining: 12, Reset: heartbeat.Add(time.Hour)},
			DatabasePath: "/data/repolens.db",
			StuckStages: []domain.StuckStage{{
				Repository:    testRepo,
				Stage:         domain.StagePullRequests,
				RunID:         "run-7",
				LastHeartbeat: heartbeat,
			}},
			CheckedAt: heartbeat.Add(time.Hour),
		}
		server, err := NewServer(&Ports{Ingestion: &mockIngestionService{}, Health: &mockHealthService{report: report}})
		require.NoError(t, err)

		_, output, err := server.handleHealth(ctx, nil, struct{}{})

		require.NoError(t, err)
		assert.False(t, output.Healthy)
		assert.Equal(t, "local", output.EmbeddingProvider)
		assert.False(t, output.EmbeddingReachable)
		assert.Equal(t, "connection refused", output.EmbeddingError)
		require.NotNil(t, output.GitHubQuota)
		assert.Equal(t, 12, output.GitHubQuota.Remaining)
		assert.Equal(t, "2026-03-01T13:00:00Z", output.GitHubQuota.ResetAt)
		assert.Equal(t, "/data/repolens.db", output.DatabasePath)
		require.Len(t, output.StuckStages, 1)
		assert.Equal(t, StuckStageOutput{
			Repository:    "acme/widgets",
			Stage:         "pull_requests",
			RunID:         "run-7",
			LastHeartbeat: "2026-03-01T12:00:00Z",
		}, output.StuckStages[0])
	})

	t.Run("healthy with no quota", func(t *testing.T) {
		report := &domain.HealthReport{
			Healthy:   true,
			Embedding: domain.EmbeddingHealth{Provider: domain.ProviderRemote, Reachable: true},
		}
		server, err := NewServer(&Ports{Ingestion: &mockIngestionService{}, Health: &mockHealthService{report: report}})
		require.NoError(t, err)

		_, output, err := server.handleHealth(ctx, nil, struct{}{})

		require.NoError(t, err)
		assert.True(t, output.Healthy)
		assert.Nil(t, output.GitHubQuota)
		assert.NotNil(t, output.StuckStages)
	})

	t.Run("not configured", func(t *testing.T) {
		server := newTestServer(t, &mockIngestionService{}, nil)

		_, _, err := server.handleHealth(ctx, nil, struct{}{})

		assert.ErrorIs(t, err, ErrHealthUnavailable)
	})
}
