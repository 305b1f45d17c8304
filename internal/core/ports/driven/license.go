package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// Gated actions.
const (
	ActionIngestStage = "ingest_stage"
	ActionQuery       = "similarity_query"
)

// LicenseGate decides whether an action may run and records usage.
// A nil gate permits everything.
type LicenseGate interface {
	// IsActionPermitted reports whether the action may run now.
	IsActionPermitted(ctx context.Context, action string) (bool, error)

	// RecordUsage records one completed action for a repository.
	RecordUsage(ctx context.Context, action string, repo domain.RepositoryID) error
}

// UsageStore is the ledger behind the usage-limit gate.
type UsageStore interface {
	// RecordUsage appends one usage entry.
	RecordUsage(ctx context.Context, action string, repo domain.RepositoryID, at time.Time) error

	// CountUsage counts entries for an action since a point in time.
	CountUsage(ctx context.Context, action string, since time.Time) (int, error)
}
