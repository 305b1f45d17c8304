package domain

import "time"

// StageStatus is the lifecycle state of one ingestion stage.
type StageStatus string

// Stage statuses.
const (
	StatusNotStarted StageStatus = "not_started"
	StatusInProgress StageStatus = "in_progress"
	StatusComplete   StageStatus = "complete"
	StatusFailed     StageStatus = "failed"
)

// IsTerminal reports whether the status ends a run.
func (s StageStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// String returns the string representation.
func (s StageStatus) String() string {
	return string(s)
}

// StageProgress is the persisted record of one stage for one repository.
type StageProgress struct {
	Stage  Stage
	Status StageStatus

	// DocumentsStored is the number of distinct documents in the stage's
	// collection after the last completed run.
	DocumentsStored int

	// ChunksStored is the number of vectors in the stage's collection.
	ChunksStored int

	// DocumentsProcessed is what the last (or current) run fetched.
	DocumentsProcessed int

	// ChunksProcessed is what the last (or current) run embedded.
	ChunksProcessed int

	CollectionName    string
	TerminationReason TerminationReason
	Error             string
	RunID             string

	StartedAt   time.Time
	CompletedAt time.Time
	HeartbeatAt time.Time
	Duration    time.Duration
}

// IsStale reports whether an in-progress stage stopped sending heartbeats,
// which happens when the process running it crashed.
func (p StageProgress) IsStale(now time.Time, staleAfter time.Duration) bool {
	if p.Status != StatusInProgress {
		return false
	}
	last := p.HeartbeatAt
	if last.IsZero() {
		last = p.StartedAt
	}
	return now.Sub(last) > staleAfter
}

// IngestionProgress tracks the four stages of one repository.
type IngestionProgress struct {
	Repository RepositoryID
	Stages     map[Stage]StageProgress

	// DefaultBranch is recorded when the repository is validated.
	DefaultBranch string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIngestionProgress returns a progress record with every stage not started.
func NewIngestionProgress(repo RepositoryID, now time.Time) *IngestionProgress {
	p := &IngestionProgress{
		Repository: repo,
		Stages:     make(map[Stage]StageProgress, 4),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, st := range Stages() {
		p.Stages[st] = StageProgress{
			Stage:          st,
			Status:         StatusNotStarted,
			CollectionName: CollectionName(repo, st.SourceType()),
		}
	}
	return p
}

// Stage returns the record for a stage, defaulting to not started.
func (p *IngestionProgress) Stage(st Stage) StageProgress {
	if sp, ok := p.Stages[st]; ok {
		return sp
	}
	return StageProgress{
		Stage:          st,
		Status:         StatusNotStarted,
		CollectionName: CollectionName(p.Repository, st.SourceType()),
	}
}

// TotalDocuments sums the stored document counts of all stages.
func (p *IngestionProgress) TotalDocuments() int {
	total := 0
	for _, sp := range p.Stages {
		total += sp.DocumentsStored
	}
	return total
}

// TotalChunks sums the stored chunk counts of all stages.
func (p *IngestionProgress) TotalChunks() int {
	total := 0
	for _, sp := range p.Stages {
		total += sp.ChunksStored
	}
	return total
}

// CompletionPercentage is the share of stages that are complete.
func (p *IngestionProgress) CompletionPercentage() float64 {
	done := 0
	for _, st := range Stages() {
		if p.Stage(st).Status == StatusComplete {
			done++
		}
	}
	return float64(done) / float64(len(Stages())) * 100
}

// NextStage returns the first stage that is not complete, or "" when all are.
func (p *IngestionProgress) NextStage() Stage {
	for _, st := range Stages() {
		if p.Stage(st).Status != StatusComplete {
			return st
		}
	}
	return ""
}

// OverallStatus folds the stage statuses into one.
// Any running stage wins, then any failure, then completeness.
func (p *IngestionProgress) OverallStatus() StageStatus {
	var complete, failed, running int
	for _, st := range Stages() {
		switch p.Stage(st).Status {
		case StatusComplete:
			complete++
		case StatusFailed:
			failed++
		case StatusInProgress:
			running++
		}
	}
	switch {
	case running > 0:
		return StatusInProgress
	case failed > 0:
		return StatusFailed
	case complete == len(Stages()):
		return StatusComplete
	case complete > 0:
		return StatusInProgress
	default:
		return StatusNotStarted
	}
}

// Collections returns the collection names of stages that stored data.
func (p *IngestionProgress) Collections() []string {
	var names []string
	for _, st := range Stages() {
		sp := p.Stage(st)
		if sp.ChunksStored > 0 {
			names = append(names, sp.CollectionName)
		}
	}
	return names
}
