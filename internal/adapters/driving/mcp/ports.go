package mcp

import (
	"time"

	"github.com/custodia-labs/repolens/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Ingestion runs and tracks the staged ingestion.
	Ingestion driving.IngestionService

	// Query answers similarity queries. Optional: without it the
	// similarity_query tool reports the embedding service as unavailable.
	Query driving.QueryService

	// Health reports provider reachability, GitHub quota and stuck stages.
	// Optional: without it the health tool returns an error.
	Health driving.HealthService

	// ResponseBudget bounds how long one tool call waits for a stage.
	// Zero uses the default of 4m30s.
	ResponseBudget time.Duration
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Ingestion == nil {
		return ErrMissingIngestionService
	}
	return nil
}
