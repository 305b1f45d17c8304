package driving

import (
	"context"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// HealthService reports whether the pipeline can run.
type HealthService interface {
	// Check pings the embedding provider and inspects the GitHub quota and
	// stored progress. Problems are reported in the result; the error is
	// reserved for an unreadable progress store.
	Check(ctx context.Context) (*domain.HealthReport, error)
}
