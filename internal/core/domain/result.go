package domain

import "time"

// RepositoryInfo is what validation learns about a repository.
type RepositoryInfo struct {
	Repository    RepositoryID
	DefaultBranch string
	Description   string
	Language      string
	Private       bool
	HasIssues     bool
	Stars         int
}

// StagePlan is returned by StartIngestion: the validated repository and the
// stage the caller should run next.
type StagePlan struct {
	Repository    RepositoryID
	DefaultBranch string
	Stages        []StageProgress
	NextStage     Stage
	Collections   map[Stage]string
}

// StageResult is the structured outcome of one stage run. Failures are
// reported here rather than as errors crossing the tool surface.
type StageResult struct {
	Repository RepositoryID
	Stage      Stage
	Status     StageStatus

	DocumentsProcessed int
	ChunksStored       int

	// DocumentsStored is the distinct document count of the collection
	// after the run.
	DocumentsStored int

	// NewDocuments is DocumentsStored minus the count before the run.
	NewDocuments int

	ElapsedSeconds    float64
	TerminationReason TerminationReason
	Examined          int
	Collection        string

	Error      string
	Suggestion string
	Warnings   []string

	// RunID identifies the worker run.
	RunID string

	// Running is set when the worker was still going when the caller's
	// wait budget ran out.
	Running bool
}

// Succeeded reports whether the stage completed.
func (r *StageResult) Succeeded() bool {
	return r != nil && r.Status == StatusComplete
}

// RepositorySummary is one row of the repository listing.
type RepositorySummary struct {
	Repository     RepositoryID
	OverallStatus  StageStatus
	Completion     float64
	TotalDocuments int
	NextStage      Stage
	UpdatedAt      time.Time
}

// ClearResult reports what ClearRepository removed.
type ClearResult struct {
	Repository         RepositoryID
	DeletedCollections []string
	ProgressDeleted    bool
}
