package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion Errors.

	// ErrSourceUnavailable indicates the repository or one of its
	// sub-resources could not be reached. Fatal for the current stage.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrQuotaExceeded indicates the remote embedding provider refused the
	// request for quota or rate reasons. It is never retried in a loop.
	ErrQuotaExceeded = errors.New("embedding quota exceeded")

	// ErrEmbeddingProviderMismatch indicates a collection was written by a
	// different provider kind or with different dimensions.
	ErrEmbeddingProviderMismatch = errors.New("embedding provider mismatch")

	// ErrChunkBudgetExceeded indicates the chunker produced a chunk above the
	// ceiling or more chunks than the cap. This is a defect, not a user error.
	ErrChunkBudgetExceeded = errors.New("chunk budget exceeded")

	// ErrStageTimedOut indicates a stage ran out of wall-clock budget
	// without collecting anything.
	ErrStageTimedOut = errors.New("stage timed out")

	// ErrStageInProgress indicates another run holds the repository.
	ErrStageInProgress = errors.New("stage in progress")

	// ErrActionNotPermitted indicates the license gate denied the action.
	ErrActionNotPermitted = errors.New("action not permitted")

	// ErrConfirmationRequired indicates a destructive action was called
	// without explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured
	// or failed its startup check.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates the GitHub API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// StageError describes a failed stage together with what was salvaged.
type StageError struct {
	Stage      Stage
	Repository RepositoryID

	// Salvaged is the number of documents stored before the failure.
	Salvaged int

	// Target is the number of documents the run was trying to store.
	Target int

	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("stage %s failed for %s: %v", e.Stage, e.Repository, e.Err)
	if e.Target > 0 || e.Salvaged > 0 {
		msg += fmt.Sprintf(" (salvaged %d of %d)", e.Salvaged, e.Target)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Suggestion returns a recovery hint for an ingestion error, or "" when
// there is nothing more useful to say than retrying.
func Suggestion(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return "the remote embedding quota is exhausted: wait for it to reset or switch embedding.provider to local"
	case errors.Is(err, ErrEmbeddingProviderMismatch):
		return "the collection was built with another embedding provider: clear the repository and ingest again"
	case errors.Is(err, ErrSourceUnavailable):
		return "check the repository name and that GITHUB_TOKEN can read it"
	case errors.Is(err, ErrRateLimited):
		return "GitHub rate limit reached: set GITHUB_TOKEN or retry after the reset"
	case errors.Is(err, ErrStageTimedOut):
		return "retry the stage or raise ingestion.pr_budget"
	case errors.Is(err, ErrStageInProgress):
		return "another run is active for this repository: poll get_status until it finishes"
	case errors.Is(err, ErrActionNotPermitted):
		return "the monthly stage limit is reached"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "check the embedding provider configuration with 'repolens settings show'"
	case errors.Is(err, ErrChunkBudgetExceeded):
		return "internal chunking error: please report it"
	case errors.Is(err, context.Canceled):
		return "the run was cancelled: run the stage again to resume"
	default:
		return ""
	}
}
