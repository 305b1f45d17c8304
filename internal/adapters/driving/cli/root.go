// Package cli implements the repolens command line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Services used by the commands. Set by Configure before Execute.
var (
	ingestionService driving.IngestionService
	queryService     driving.QueryService
	settingsService  driving.SettingsService
	healthService    driving.HealthService

	// shutdownFunc stops background stage workers before the process exits.
	shutdownFunc func(context.Context) error
)

// errNotConfigured is returned by commands whose service is missing.
var errNotConfigured = errors.New("ingestion service not configured")

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "repolens",
	Short: "Ingest GitHub repositories into vector collections",
	Long: `repolens ingests a GitHub repository in four stages (documentation,
source code, issues and merged pull requests), embeds the chunks with a
local or remote embedding provider and stores them in per-repository
vector collections.

Each stage is independently retryable, and progress is persisted so an
interrupted run can be resumed. Run 'repolens mcp serve' to expose the
pipeline to AI assistants over the Model Context Protocol.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

// Config holds the services the commands run against.
type Config struct {
	Ingestion driving.IngestionService
	Query     driving.QueryService
	Settings  driving.SettingsService
	Health    driving.HealthService

	// Shutdown is called when a long-running command exits. Optional.
	Shutdown func(context.Context) error
}

// Configure sets the services used by the commands.
func Configure(cfg *Config) {
	ingestionService = cfg.Ingestion
	queryService = cfg.Query
	settingsService = cfg.Settings
	healthService = cfg.Health
	shutdownFunc = cfg.Shutdown
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// commandContext returns the command's context, or a background context
// when the command is executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
