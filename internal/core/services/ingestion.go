package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
)

// Ensure IngestionOrchestrator implements the interface.
var _ driving.IngestionService = (*IngestionOrchestrator)(nil)

// IngestionOrchestrator runs the four ingestion stages of a repository.
//
// A repository is held by at most one run: within this process by a lock
// per repository, across processes by ProgressStore.BeginStage. Different
// repositories run concurrently.
type IngestionOrchestrator struct {
	fetchers  map[domain.SourceType]driven.Fetcher
	inspector driven.RepositoryInspector
	chunker   driven.DocumentChunker
	embedder  driven.EmbeddingProvider
	vectors   driven.VectorStore
	progress  driven.ProgressStore
	gate      driven.LicenseGate
	settings  domain.IngestionSettings
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	workers map[string]*stageWorker

	// prepared is set once the embedder's model download succeeded.
	prepareMu sync.Mutex
	prepared  bool
}

// OrchestratorOption configures an IngestionOrchestrator.
type OrchestratorOption func(*IngestionOrchestrator)

// WithLicenseGate sets the usage gate. Without one every stage is permitted.
func WithLicenseGate(g driven.LicenseGate) OrchestratorOption {
	return func(o *IngestionOrchestrator) {
		if g != nil {
			o.gate = g
		}
	}
}

// WithBatchSize overrides the embedding sub-batch size.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *IngestionOrchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithClock sets the clock used for progress timestamps and staleness.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *IngestionOrchestrator) {
		o.now = now
	}
}

// NewIngestionOrchestrator creates an orchestrator. embedder may be nil, in
// which case stages fail with domain.ErrEmbeddingUnavailable while status,
// listing and clearing keep working.
func NewIngestionOrchestrator(
	fetchers []driven.Fetcher,
	inspector driven.RepositoryInspector,
	chunker driven.DocumentChunker,
	embedder driven.EmbeddingProvider,
	vectors driven.VectorStore,
	progress driven.ProgressStore,
	settings domain.IngestionSettings,
	opts ...OrchestratorOption,
) *IngestionOrchestrator {
	defaults := domain.DefaultSettings().Ingestion
	if settings.StaleAfter <= 0 {
		settings.StaleAfter = defaults.StaleAfter
	}
	if settings.MaxIssues <= 0 {
		settings.MaxIssues = defaults.MaxIssues
	}
	if settings.MaxPRs <= 0 {
		settings.MaxPRs = defaults.MaxPRs
	}
	if settings.PRBudget <= 0 {
		settings.PRBudget = defaults.PRBudget
	}
	if settings.ResponseBudget <= 0 {
		settings.ResponseBudget = defaults.ResponseBudget
	}

	o := &IngestionOrchestrator{
		fetchers:  make(map[domain.SourceType]driven.Fetcher, len(fetchers)),
		inspector: inspector,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		progress:  progress,
		gate:      permitAll{},
		settings:  settings,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     make(map[string]*sync.Mutex),
		workers:   make(map[string]*stageWorker),
	}
	for _, f := range fetchers {
		o.fetchers[f.SourceType()] = f
	}
	if embedder != nil {
		o.batchSize = embedder.Kind().DefaultBatchSize()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartIngestion validates the repository, records its progress and
// returns the stage plan.
func (o *IngestionOrchestrator) StartIngestion(ctx context.Context, repo domain.RepositoryID) (*domain.StagePlan, error) {
	if repo.IsZero() {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if o.inspector == nil {
		return nil, fmt.Errorf("validate repository: %w: no repository inspector configured", domain.ErrSourceUnavailable)
	}

	info, err := o.inspector.Inspect(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("validate repository: %w", err)
	}

	p, err := o.progress.Init(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("init progress: %w", err)
	}
	if info.DefaultBranch != "" {
		if err := o.progress.SetDefaultBranch(ctx, repo, info.DefaultBranch); err != nil {
			return nil, fmt.Errorf("record default branch: %w", err)
		}
		p.DefaultBranch = info.DefaultBranch
	}

	plan := &domain.StagePlan{
		Repository:    repo,
		DefaultBranch: p.DefaultBranch,
		NextStage:     p.NextStage(),
		Collections:   make(map[domain.Stage]string, len(domain.Stages())),
	}
	for _, st := range domain.Stages() {
		sp := p.Stage(st)
		plan.Stages = append(plan.Stages, sp)
		plan.Collections[st] = sp.CollectionName
	}

	logger.Info("Validated %s (default branch %s), next stage %s", repo, plan.DefaultBranch, plan.NextStage)
	return plan, nil
}

// IngestStage runs one stage on the caller's goroutine.
func (o *IngestionOrchestrator) IngestStage(
	ctx context.Context,
	repo domain.RepositoryID,
	stage domain.Stage,
	limits domain.Limits,
	progress driving.ProgressFunc,
) (*domain.StageResult, error) {
	run, err := o.claim(ctx, repo, stage)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		return rejected(repo, stage, err), nil
	}
	return o.execute(ctx, run, limits, progress), nil
}

// StartStage claims a stage and runs it on a background worker. The worker
// outlives ctx; use CancelStage to stop it.
func (o *IngestionOrchestrator) StartStage(
	ctx context.Context,
	repo domain.RepositoryID,
	stage domain.Stage,
	limits domain.Limits,
) (string, error) {
	run, err := o.claim(ctx, repo, stage)
	if err != nil {
		return "", err
	}

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &stageWorker{
		repo:    repo,
		stage:   stage,
		runID:   run.runID,
		started: run.started,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	o.pruneWorkers(repo)
	o.workers[run.runID] = w
	o.mu.Unlock()

	go func() {
		defer cancel()
		w.result = o.execute(workerCtx, run, limits, nil)
		close(w.done)
	}()

	logger.Debug("Started %s stage of %s as run %s", stage, repo, run.runID)
	return run.runID, nil
}

// WaitStage waits up to maxWait for a background worker.
func (o *IngestionOrchestrator) WaitStage(
	ctx context.Context,
	repo domain.RepositoryID,
	runID string,
	maxWait time.Duration,
) (*domain.StageResult, bool, error) {
	o.mu.Lock()
	w, ok := o.workers[runID]
	o.mu.Unlock()
	if !ok || !sameRepository(w.repo, repo) {
		return nil, false, fmt.Errorf("run %s for %s: %w", runID, repo, domain.ErrNotFound)
	}

	if maxWait <= 0 {
		maxWait = o.settings.ResponseBudget
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.result, true, nil
	case <-timer.C:
		return o.snapshot(ctx, w), false, nil
	case <-ctx.Done():
		return o.snapshot(context.WithoutCancel(ctx), w), false, nil
	}
}

// CancelStage cancels the repository's running background worker.
func (o *IngestionOrchestrator) CancelStage(_ context.Context, repo domain.RepositoryID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, w := range o.workers {
		if sameRepository(w.repo, repo) && !w.finished() {
			w.cancel()
			logger.Info("Cancelled %s stage of %s", w.stage, repo)
			return nil
		}
	}
	return fmt.Errorf("running stage for %s: %w", repo, domain.ErrNotFound)
}

// Shutdown cancels every background worker and waits until each has
// recorded a terminal status or ctx is done.
func (o *IngestionOrchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	workers := make([]*stageWorker, 0, len(o.workers))
	for _, w := range o.workers {
		workers = append(workers, w)
	}
	o.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// IngestAll runs every stage in order, continuing past failed stages.
func (o *IngestionOrchestrator) IngestAll(
	ctx context.Context,
	repo domain.RepositoryID,
	limits domain.Limits,
	progress driving.ProgressFunc,
) ([]domain.StageResult, error) {
	results := make([]domain.StageResult, 0, len(domain.Stages()))
	for _, st := range domain.Stages() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := o.IngestStage(ctx, repo, st, limits, progress)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// RetryFailed reruns every failed or stale stage in order.
func (o *IngestionOrchestrator) RetryFailed(
	ctx context.Context,
	repo domain.RepositoryID,
	limits domain.Limits,
	progress driving.ProgressFunc,
) ([]domain.StageResult, error) {
	p, err := o.progress.Get(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("get progress for %s: %w", repo, err)
	}

	now := o.now()
	var results []domain.StageResult
	for _, st := range domain.Stages() {
		sp := p.Stage(st)
		if sp.Status != domain.StatusFailed && !sp.IsStale(now, o.settings.StaleAfter) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := o.IngestStage(ctx, repo, st, limits, progress)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// GetStatus returns the repository's progress.
func (o *IngestionOrchestrator) GetStatus(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	if repo.IsZero() {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	p, err := o.progress.Get(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("get status for %s: %w", repo, err)
	}
	return p, nil
}

// ListRepositories summarises every tracked repository.
func (o *IngestionOrchestrator) ListRepositories(ctx context.Context) ([]domain.RepositorySummary, error) {
	list, err := o.progress.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	summaries := make([]domain.RepositorySummary, 0, len(list))
	for i := range list {
		p := &list[i]
		summaries = append(summaries, domain.RepositorySummary{
			Repository:     p.Repository,
			OverallStatus:  p.OverallStatus(),
			Completion:     p.CompletionPercentage(),
			TotalDocuments: p.TotalDocuments(),
			NextStage:      p.NextStage(),
			UpdatedAt:      p.UpdatedAt,
		})
	}
	return summaries, nil
}

// ClearRepository deletes the repository's collections and progress.
func (o *IngestionOrchestrator) ClearRepository(
	ctx context.Context,
	repo domain.RepositoryID,
	confirm bool,
) (*domain.ClearResult, error) {
	if repo.IsZero() {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if !confirm {
		return nil, fmt.Errorf("%w: clearing %s deletes all of its collections", domain.ErrConfirmationRequired, repo)
	}

	lock := o.repoLock(repo)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s is being ingested", domain.ErrStageInProgress, repo)
	}
	defer lock.Unlock()

	tracked := true
	p, err := o.progress.Get(ctx, repo)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		tracked = false
	case err != nil:
		return nil, fmt.Errorf("get progress for %s: %w", repo, err)
	default:
		now := o.now()
		for _, st := range domain.Stages() {
			if sp := p.Stage(st); sp.Status == domain.StatusInProgress && !sp.IsStale(now, o.settings.StaleAfter) {
				return nil, fmt.Errorf("%w: %s stage of %s is running", domain.ErrStageInProgress, st, repo)
			}
		}
	}

	collections, err := o.vectors.ListCollections(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	result := &domain.ClearResult{Repository: repo}
	for _, c := range collections {
		if err := o.vectors.DeleteCollection(ctx, c.Name); err != nil {
			return result, fmt.Errorf("delete collection %s: %w", c.Name, err)
		}
		result.DeletedCollections = append(result.DeletedCollections, c.Name)
	}

	if tracked {
		if err := o.progress.Delete(ctx, repo); err != nil {
			return result, fmt.Errorf("delete progress: %w", err)
		}
		result.ProgressDeleted = true
	}

	logger.Info("Cleared %s: %d collections", repo, len(result.DeletedCollections))
	return result, nil
}

// ==================== Runs and workers ====================

// stageRun is a claimed stage.
type stageRun struct {
	repo    domain.RepositoryID
	stage   domain.Stage
	runID   string
	prior   domain.StageProgress
	started time.Time
	release func()
}

// stageWorker is a stage running in the background.
type stageWorker struct {
	repo    domain.RepositoryID
	stage   domain.Stage
	runID   string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	// result is written once before done is closed.
	result *domain.StageResult
}

func (w *stageWorker) finished() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// claim checks the gate, then takes the in-process lock and the durable
// claim on the stage. Nothing is fetched before claim succeeds.
func (o *IngestionOrchestrator) claim(ctx context.Context, repo domain.RepositoryID, stage domain.Stage) (*stageRun, error) {
	if repo.IsZero() {
		return nil, fmt.Errorf("%w: repository is required", domain.ErrInvalidInput)
	}
	if !stage.IsValid() {
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, stage)
	}
	if _, ok := o.fetchers[stage.SourceType()]; !ok {
		return nil, fmt.Errorf("%w: no fetcher for %s", domain.ErrInvalidInput, stage.SourceType())
	}
	if o.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}

	permitted, err := o.gate.IsActionPermitted(ctx, driven.ActionIngestStage)
	if err != nil {
		return nil, fmt.Errorf("check usage limit: %w", err)
	}
	if !permitted {
		return nil, fmt.Errorf("%w: %s", domain.ErrActionNotPermitted, driven.ActionIngestStage)
	}

	lock := o.repoLock(repo)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s is being ingested", domain.ErrStageInProgress, repo)
	}

	runID := uuid.NewString()
	prior, err := o.progress.BeginStage(ctx, repo, stage, runID, o.settings.StaleAfter)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("begin %s stage: %w", stage, err)
	}

	return &stageRun{
		repo:    repo,
		stage:   stage,
		runID:   runID,
		prior:   prior,
		started: o.now(),
		release: lock.Unlock,
	}, nil
}

// repoLock returns the in-process lock of a repository.
func (o *IngestionOrchestrator) repoLock(repo domain.RepositoryID) *sync.Mutex {
	key := strings.ToLower(repo.String())

	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	return lock
}

// pruneWorkers forgets finished workers of a repository. Callers hold o.mu.
func (o *IngestionOrchestrator) pruneWorkers(repo domain.RepositoryID) {
	for id, w := range o.workers {
		if sameRepository(w.repo, repo) && w.finished() {
			delete(o.workers, id)
		}
	}
}

// snapshot describes a worker that is still running, using the counts of
// its last heartbeat.
func (o *IngestionOrchestrator) snapshot(ctx context.Context, w *stageWorker) *domain.StageResult {
	res := &domain.StageResult{
		Repository:     w.repo,
		Stage:          w.stage,
		Status:         domain.StatusInProgress,
		Collection:     domain.CollectionName(w.repo, w.stage.SourceType()),
		ElapsedSeconds: o.now().Sub(w.started).Seconds(),
		RunID:          w.runID,
		Running:        true,
		Suggestion:     "the stage is still running: poll get_status until it completes",
	}
	if p, err := o.progress.Get(ctx, w.repo); err == nil {
		sp := p.Stage(w.stage)
		res.DocumentsProcessed = sp.DocumentsProcessed
		res.ChunksStored = sp.ChunksProcessed
		res.DocumentsStored = sp.DocumentsStored
	}
	return res
}

// rejected reports a stage that could not be claimed.
func rejected(repo domain.RepositoryID, stage domain.Stage, err error) *domain.StageResult {
	status := domain.StatusFailed
	if errors.Is(err, domain.ErrStageInProgress) {
		status = domain.StatusInProgress
	}
	logger.Warn("%s stage of %s not started: %v", stage, repo, err)
	return &domain.StageResult{
		Repository: repo,
		Stage:      stage,
		Status:     status,
		Collection: domain.CollectionName(repo, stage.SourceType()),
		Error:      err.Error(),
		Suggestion: domain.Suggestion(err),
	}
}

// permitAll is the gate used when none is configured.
type permitAll struct{}

func (permitAll) IsActionPermitted(context.Context, string) (bool, error) { return true, nil }

func (permitAll) RecordUsage(context.Context, string, domain.RepositoryID) error { return nil }

func sameRepository(a, b domain.RepositoryID) bool {
	return strings.EqualFold(a.Owner, b.Owner) && strings.EqualFold(a.Name, b.Name)
}
