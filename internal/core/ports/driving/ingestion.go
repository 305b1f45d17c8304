package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// Progress phases reported while a stage runs.
const (
	PhaseFetch  = "fetch"
	PhaseChunk  = "chunk"
	PhaseEmbed  = "embed"
	PhaseStored = "stored"
)

// ProgressEvent is a progress tick from a running stage.
type ProgressEvent struct {
	Repository domain.RepositoryID
	Stage      domain.Stage
	Phase      string

	// Processed and Total count chunks during embedding and items during fetch.
	Processed int
	Total     int

	Message string
}

// ProgressFunc receives progress events. It must not block.
type ProgressFunc func(ProgressEvent)

// IngestionService runs the staged ingestion of a repository.
type IngestionService interface {
	// StartIngestion validates the repository, records its progress and
	// returns the stage plan.
	StartIngestion(ctx context.Context, repo domain.RepositoryID) (*domain.StagePlan, error)

	// IngestStage runs one stage to completion on the caller's goroutine.
	// Stage failures are reported in the result; the error is reserved for
	// invalid input.
	IngestStage(ctx context.Context, repo domain.RepositoryID, stage domain.Stage, limits domain.Limits, progress ProgressFunc) (*domain.StageResult, error)

	// StartStage runs one stage on a background worker and returns its run id.
	StartStage(ctx context.Context, repo domain.RepositoryID, stage domain.Stage, limits domain.Limits) (string, error)

	// WaitStage waits up to maxWait for a worker. It returns the result and
	// true when the worker finished, or a running snapshot and false.
	WaitStage(ctx context.Context, repo domain.RepositoryID, runID string, maxWait time.Duration) (*domain.StageResult, bool, error)

	// CancelStage cancels the repository's background worker, if any.
	CancelStage(ctx context.Context, repo domain.RepositoryID) error

	// IngestAll runs every stage in order, continuing past failed stages.
	IngestAll(ctx context.Context, repo domain.RepositoryID, limits domain.Limits, progress ProgressFunc) ([]domain.StageResult, error)

	// RetryFailed reruns every failed or stale stage in order.
	RetryFailed(ctx context.Context, repo domain.RepositoryID, limits domain.Limits, progress ProgressFunc) ([]domain.StageResult, error)

	// GetStatus returns the repository's progress.
	GetStatus(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error)

	// ListRepositories summarises every tracked repository.
	ListRepositories(ctx context.Context) ([]domain.RepositorySummary, error)

	// ClearRepository deletes the repository's collections and progress.
	// It fails with domain.ErrConfirmationRequired unless confirm is true.
	ClearRepository(ctx context.Context, repo domain.RepositoryID, confirm bool) (*domain.ClearResult, error)
}
