package domain

import "time"

// APIQuota is the last known state of the GitHub API rate window.
type APIQuota struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Exhausted reports whether no calls remain before Reset at now.
func (q APIQuota) Exhausted(now time.Time) bool {
	return q.Limit > 0 && q.Remaining <= 0 && now.Before(q.Reset)
}

// StuckStage is an in-progress stage whose heartbeat went quiet, usually
// because the process running it died. Rerunning the stage reclaims it.
type StuckStage struct {
	Repository    RepositoryID
	Stage         Stage
	RunID         string
	LastHeartbeat time.Time
}

// EmbeddingHealth reports whether the configured provider answers.
type EmbeddingHealth struct {
	Provider  ProviderKind
	Model     string
	Reachable bool
	Error     string
}

// HealthReport is a snapshot of everything a stage run depends on.
type HealthReport struct {
	Healthy bool

	Embedding EmbeddingHealth

	// GitHubQuota is nil when no GitHub client is configured.
	GitHubQuota *APIQuota

	// DatabasePath is where progress and vectors are stored, or ":memory:".
	DatabasePath string

	StuckStages []StuckStage
	CheckedAt   time.Time
}
