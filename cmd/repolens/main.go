// Command repolens ingests GitHub repositories into vector collections.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/repolens/internal/adapters/driven/ai"
	"github.com/custodia-labs/repolens/internal/adapters/driven/config/file"
	"github.com/custodia-labs/repolens/internal/adapters/driven/license"
	"github.com/custodia-labs/repolens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/repolens/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/repolens/internal/adapters/driving/cli"
	"github.com/custodia-labs/repolens/internal/connectors/github"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/core/services"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
	"github.com/custodia-labs/repolens/internal/postprocessors"
	"github.com/custodia-labs/repolens/internal/segmenter/treesitter"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// inMemory selects the memory stores instead of the config file and database.
const inMemory = ":memory:"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// stores are the driven storage ports the services run against.
type stores struct {
	vectors  driven.VectorStore
	progress driven.ProgressStore
	usage    driven.UsageStore
	path     string
	close    func() error
}

func run(ctx context.Context) error {
	if err := file.LoadDotEnv(); err != nil {
		logger.Warn("Loading .env: %v", err)
	}

	cli.SetVersion(version)
	cli.SetEmbeddingValidator(ai.ValidateEmbeddingConfig)

	var configStore driven.ConfigStore
	if os.Getenv(services.EnvDataDir) == inMemory {
		configStore = memory.NewConfigStore()
	} else {
		store, err := file.NewConfigStore(os.Getenv(services.EnvDataDir))
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		configStore = store
	}
	settingsService := services.NewSettingsService(configStore)

	settings, err := settingsService.Get()
	if err != nil {
		// Settings commands still work so the bad value can be fixed.
		logger.Warn("Invalid settings: %v", err)
		cli.Configure(&cli.Config{Settings: settingsService})
		return cli.Execute(ctx)
	}

	st, err := openStores(settings.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Warn("Closing storage: %v", err)
		}
	}()

	client := github.NewClientWithToken(ctx, settings.GitHubToken)
	connector := github.New(
		client,
		github.NewTreeSource(client, settings.UseClone),
		treesitter.New(),
		github.ConfigFromSettings(settings.Ingestion),
	)

	var (
		embedder driven.EmbeddingProvider
		query    driving.QueryService
	)
	if provider, err := ai.CreateAndValidateEmbeddingProvider(ctx, &settings.Embedding); err != nil {
		logger.Warn("Embedding provider unavailable: %v", err)
	} else {
		embedder = provider
		defer provider.Close()
	}

	gate := license.New(st.usage, settings.MonthlyStageLimit)
	orchestrator := services.NewIngestionOrchestrator(
		connector.Fetchers(),
		connector.Inspector(),
		postprocessors.NewDefaultPipeline(settings.Chunking),
		embedder,
		st.vectors,
		st.progress,
		settings.Ingestion,
		services.WithLicenseGate(gate),
		services.WithBatchSize(settings.Embedding.EffectiveBatchSize()),
	)
	if embedder != nil {
		query = services.NewQueryService(embedder, st.vectors, gate)
	}

	if settings.MetricsAddr != "" {
		stopMetrics := serveMetrics(settings.MetricsAddr)
		defer stopMetrics()
	}

	health := services.NewHealthService(
		settings.Embedding,
		ai.ValidateEmbeddingConfig,
		st.progress,
		settings.Ingestion.StaleAfter,
		services.WithQuotaReporter(connector.Quota()),
		services.WithDatabasePath(st.path),
	)

	cli.Configure(&cli.Config{
		Ingestion: orchestrator,
		Query:     query,
		Settings:  settingsService,
		Health:    health,
		Shutdown:  orchestrator.Shutdown,
	})
	return cli.Execute(ctx)
}

// openStores opens the SQLite database in dataDir, or memory stores when
// dataDir is ":memory:".
func openStores(dataDir string) (*stores, error) {
	if dataDir == inMemory {
		return &stores{
			vectors:  memory.NewVectorStore(),
			progress: memory.NewProgressStore(),
			usage:    memory.NewUsageStore(),
			path:     inMemory,
			close:    func() error { return nil },
		}, nil
	}

	db, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.Debug("Using database %s", db.Path())
	return &stores{
		vectors:  db.VectorStore(),
		progress: db.ProgressStore(),
		usage:    db.UsageStore(),
		path:     db.Path(),
		close:    db.Close,
	}, nil
}

// serveMetrics exposes the Prometheus collectors on addr until the
// returned function is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics listener on %s: %v", addr, err)
		}
	}()
	logger.Debug("Serving metrics on http://%s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
