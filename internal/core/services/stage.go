package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
	"github.com/custodia-labs/repolens/internal/metrics"
)

// stageRunner carries one claimed stage from fetch to a terminal status.
type stageRunner struct {
	o      *IngestionOrchestrator
	run    *stageRun
	emit   driving.ProgressFunc
	result *domain.StageResult
	log    logger.Entry

	// target is the number of documents that produced chunks.
	target int

	// chunks is the number of chunks upserted so far.
	chunks int

	// salvaged counts documents whose last chunk was upserted.
	salvaged int
}

// execute runs a claimed stage and releases the claim. It always ends with
// the stage recorded as complete or failed.
func (o *IngestionOrchestrator) execute(
	ctx context.Context,
	run *stageRun,
	limits domain.Limits,
	progress driving.ProgressFunc,
) *domain.StageResult {
	defer run.release()

	r := &stageRunner{
		o:    o,
		run:  run,
		emit: serialised(progress),
		result: &domain.StageResult{
			Repository: run.repo,
			Stage:      run.stage,
			Status:     domain.StatusInProgress,
			Collection: domain.CollectionName(run.repo, run.stage.SourceType()),
			RunID:      run.runID,
		},
		log: logger.ForStage(run.repo.String(), string(run.stage)),
	}
	return r.runStage(ctx, limits.WithDefaults(o.settings.DefaultLimits(), o.settings.ScanPolicy()))
}

func (r *stageRunner) runStage(ctx context.Context, limits domain.Limits) *domain.StageResult {
	logger.Section(fmt.Sprintf("%s stage: %s", r.run.stage, r.run.repo))

	if err := r.prepareModel(ctx); err != nil {
		return r.fail(ctx, err)
	}

	docs, err := r.fetch(ctx, limits)
	if err != nil {
		return r.fail(ctx, err)
	}

	chunks, stats, err := r.o.chunker.ChunkAll(ctx, docs, r.o.embedder.Kind())
	if err != nil {
		return r.fail(ctx, fmt.Errorf("chunk documents: %w", err))
	}
	r.target = stats.Documents
	if stats.Truncated > 0 {
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("%d documents were truncated to the %s chunk cap", stats.Truncated, r.run.stage.SourceType()))
	}
	r.notify(driving.PhaseChunk, stats.Chunks, stats.Chunks,
		fmt.Sprintf("%d documents split into %d chunks", stats.Documents, stats.Chunks))

	if err := r.store(ctx, chunks); err != nil {
		return r.fail(ctx, err)
	}

	return r.complete(ctx)
}

// fetch runs the stage's fetcher. A wall-clock stop with nothing collected
// is a timeout; any other stop returns what was collected.
func (r *stageRunner) fetch(ctx context.Context, limits domain.Limits) ([]domain.Document, error) {
	source := r.run.stage.SourceType()
	fetcher := r.o.fetchers[source]

	res, err := fetcher.Fetch(ctx, domain.FetchRequest{
		Repository: r.run.repo,
		Limits:     limits,
		OnProgress: func(p domain.FetchProgress) {
			r.heartbeat(ctx, p.Collected, 0)
			r.notify(driving.PhaseFetch, p.Collected, 0, p.Message)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	r.result.DocumentsProcessed = len(res.Documents)
	r.result.Examined = res.Examined
	r.result.TerminationReason = res.Termination
	r.result.Warnings = append(r.result.Warnings, res.Warnings...)
	metrics.AddDocuments(string(source), len(res.Documents))

	if res.Termination == domain.TerminationWallClockLimit && len(res.Documents) == 0 {
		return nil, fmt.Errorf("%w: no %s collected within %s (examined %d)",
			domain.ErrStageTimedOut, source, limits.WallClockBudget, res.Examined)
	}

	r.heartbeat(ctx, len(res.Documents), 0)
	r.notify(driving.PhaseFetch, len(res.Documents), len(res.Documents),
		fmt.Sprintf("fetched %d documents", len(res.Documents)))
	return res.Documents, nil
}

// store embeds chunks in provider-sized sub-batches and upserts each one
// before embedding the next. After every sub-batch it heartbeats, reports
// progress and checks ctx.
func (r *stageRunner) store(ctx context.Context, chunks []domain.Chunk) error {
	o := r.o
	coll, err := o.vectors.EnsureCollection(ctx, domain.Collection{
		Name:         r.result.Collection,
		Repository:   r.run.repo,
		SourceType:   r.run.stage.SourceType(),
		ProviderKind: o.embedder.Kind(),
		Model:        o.embedder.ModelName(),
		Dimensions:   o.embedder.Dimensions(),
	})
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	provider := string(o.embedder.Kind())
	source := string(r.run.stage.SourceType())
	size := o.batchSize
	if size <= 0 {
		size = o.embedder.Kind().DefaultBatchSize()
	}

	for start := 0; start < len(chunks); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		began := time.Now()
		vectors, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			metrics.EmbedError(provider, errorClass(err))
			return fmt.Errorf("embed chunks %d-%d of %d: %w", start+1, end, len(chunks), err)
		}
		metrics.ObserveEmbedBatch(provider, time.Since(began))
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed chunks %d-%d of %d: provider returned %d vectors", start+1, end, len(chunks), len(vectors))
		}

		records := make([]domain.VectorRecord, len(batch))
		for i, c := range batch {
			records[i] = domain.VectorRecord{
				ID:          c.ID(coll.Name),
				DocumentID:  c.DocumentID,
				ChunkIndex:  c.Index,
				TotalChunks: c.Total,
				Text:        c.Text,
				Vector:      vectors[i],
				Metadata:    c.Metadata,
			}
		}
		if err := o.vectors.Upsert(ctx, coll.Name, records); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}

		for _, c := range batch {
			if c.Index == c.Total-1 {
				r.salvaged++
			}
		}
		r.chunks += len(batch)
		metrics.AddChunks(source, len(batch))

		r.heartbeat(ctx, r.result.DocumentsProcessed, r.chunks)
		r.notify(driving.PhaseEmbed, r.chunks, len(chunks), "")
	}
	return nil
}

// complete records the stage as complete from the collection's counts.
func (r *stageRunner) complete(ctx context.Context) *domain.StageResult {
	o := r.o
	docs, chunks, err := r.counts(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}

	now := o.now()
	sp := r.record(domain.StatusComplete, docs, chunks, now)
	if err := o.progress.UpdateStage(ctx, r.run.repo, sp); err != nil {
		return r.fail(ctx, fmt.Errorf("record completion: %w", err))
	}

	if err := o.gate.RecordUsage(ctx, driven.ActionIngestStage, r.run.repo); err != nil {
		r.log.Warn("Record usage: %v", err)
	}

	r.result.Status = domain.StatusComplete
	r.result.DocumentsStored = docs
	r.result.NewDocuments = docs - r.run.prior.DocumentsStored
	r.result.ChunksStored = r.chunks
	r.result.ElapsedSeconds = sp.Duration.Seconds()
	metrics.ObserveStage(string(r.run.stage), string(domain.StatusComplete), sp.Duration)

	r.notify(driving.PhaseStored, docs, docs,
		fmt.Sprintf("%d documents stored (%+d)", docs, r.result.NewDocuments))
	r.log.Info("Complete: %d documents stored (%+d), %d chunks in %s",
		docs, r.result.NewDocuments, r.chunks, sp.Duration.Round(time.Millisecond))
	return r.result
}

// fail records the stage as failed with what was salvaged. The record is
// written even when ctx is already cancelled.
func (r *stageRunner) fail(ctx context.Context, cause error) *domain.StageResult {
	o := r.o
	wctx := context.WithoutCancel(ctx)

	serr := &domain.StageError{
		Stage:      r.run.stage,
		Repository: r.run.repo,
		Salvaged:   r.salvaged,
		Target:     r.target,
		Err:        cause,
	}

	docs, chunks, err := r.counts(wctx)
	if err != nil {
		r.log.Warn("Count %s after failure: %v", r.result.Collection, err)
		docs, chunks = r.run.prior.DocumentsStored, r.run.prior.ChunksStored
	}

	sp := r.record(domain.StatusFailed, docs, chunks, o.now())
	sp.Error = serr.Error()
	if err := o.progress.UpdateStage(wctx, r.run.repo, sp); err != nil {
		r.log.Warn("Record failure: %v", err)
	}

	r.result.Status = domain.StatusFailed
	r.result.DocumentsStored = docs
	r.result.NewDocuments = docs - r.run.prior.DocumentsStored
	r.result.ChunksStored = r.chunks
	r.result.ElapsedSeconds = sp.Duration.Seconds()
	r.result.Error = serr.Error()
	r.result.Suggestion = domain.Suggestion(cause)
	metrics.ObserveStage(string(r.run.stage), string(domain.StatusFailed), sp.Duration)

	r.log.Error("%v", cause)
	return r.result
}

// record builds the terminal progress record of the run.
func (r *stageRunner) record(status domain.StageStatus, docs, chunks int, now time.Time) domain.StageProgress {
	return domain.StageProgress{
		Stage:              r.run.stage,
		Status:             status,
		DocumentsStored:    docs,
		ChunksStored:       chunks,
		DocumentsProcessed: r.result.DocumentsProcessed,
		ChunksProcessed:    r.chunks,
		CollectionName:     r.result.Collection,
		TerminationReason:  r.result.TerminationReason,
		RunID:              r.run.runID,
		StartedAt:          r.run.started,
		CompletedAt:        now,
		HeartbeatAt:        now,
		Duration:           now.Sub(r.run.started),
	}
}

// counts returns the distinct documents and chunks in the collection.
func (r *stageRunner) counts(ctx context.Context) (int, int, error) {
	docs, err := r.o.vectors.CountDocuments(ctx, r.result.Collection)
	if err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := r.o.vectors.CountChunks(ctx, r.result.Collection)
	if err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return docs, chunks, nil
}

// heartbeat records live counts. Failures are logged; the next heartbeat
// or the terminal record supersedes them.
func (r *stageRunner) heartbeat(ctx context.Context, processed, chunks int) {
	if ctx.Err() != nil {
		return
	}
	if err := r.o.progress.Heartbeat(ctx, r.run.repo, r.run.stage, r.run.runID, processed, chunks); err != nil {
		r.log.Debug("Heartbeat: %v", err)
	}
}

func (r *stageRunner) notify(phase string, processed, total int, msg string) {
	r.emit(driving.ProgressEvent{
		Repository: r.run.repo,
		Stage:      r.run.stage,
		Phase:      phase,
		Processed:  processed,
		Total:      total,
		Message:    msg,
	})
}

// serialised wraps a progress callback so fetcher goroutines and the
// stage loop never call it concurrently.
func serialised(fn driving.ProgressFunc) driving.ProgressFunc {
	if fn == nil {
		return func(driving.ProgressEvent) {}
	}
	var mu sync.Mutex
	return func(ev driving.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		fn(ev)
	}
}

// errorClass labels an embedding failure for metrics.
func errorClass(err error) string {
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return "quota"
	}
	return "transient"
}

// prepareModel runs the provider's one-time model download, if it has one.
// A failed download is retried by the next stage.
func (r *stageRunner) prepareModel(ctx context.Context) error {
	p, ok := r.o.embedder.(driven.ModelPreparer)
	if !ok {
		return nil
	}

	r.o.prepareMu.Lock()
	defer r.o.prepareMu.Unlock()
	if r.o.prepared {
		return nil
	}
	err := p.Prepare(ctx, func(msg string) {
		r.notify(driving.PhaseEmbed, 0, 0, msg)
	})
	if err != nil {
		return fmt.Errorf("%w: prepare %s: %w", domain.ErrEmbeddingUnavailable, r.o.embedder.ModelName(), err)
	}
	r.o.prepared = true
	return nil
}
