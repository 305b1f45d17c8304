package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// ProgressStore persists per-repository stage progress.
// Only the ingestion orchestrator mutates it.
type ProgressStore interface {
	// Init creates a progress record with every stage not started, or
	// returns the existing one.
	Init(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error)

	// Get returns the progress record or domain.ErrNotFound.
	Get(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error)

	// SetDefaultBranch records the branch learned when the repository was
	// validated.
	SetDefaultBranch(ctx context.Context, repo domain.RepositoryID, branch string) error

	// List returns every tracked repository.
	List(ctx context.Context) ([]domain.IngestionProgress, error)

	// BeginStage marks a stage in progress under runID and returns the
	// snapshot from before the change. It fails with domain.ErrStageInProgress
	// when any stage of the repository is in progress with a heartbeat newer
	// than staleAfter.
	BeginStage(ctx context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, staleAfter time.Duration) (domain.StageProgress, error)

	// Heartbeat records live counts for a running stage. It is a no-op when
	// runID no longer owns the stage.
	Heartbeat(ctx context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, processed, chunks int) error

	// UpdateStage replaces a stage record. A record carrying a run id only
	// replaces a stage owned by that run; otherwise it fails with
	// domain.ErrStageInProgress.
	UpdateStage(ctx context.Context, repo domain.RepositoryID, sp domain.StageProgress) error

	// Delete removes the repository's progress.
	Delete(ctx context.Context, repo domain.RepositoryID) error
}
