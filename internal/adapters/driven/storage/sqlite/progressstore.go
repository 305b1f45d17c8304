package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// ==================== Progress Store ====================

// progressStore implements driven.ProgressStore.
type progressStore struct {
	store *Store
}

var _ driven.ProgressStore = (*progressStore)(nil)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const stageColumns = `stage, status, documents_stored, chunks_stored, documents_processed, chunks_processed,
	collection_name, termination_reason, error, run_id, started_at, completed_at, heartbeat_at, duration_ms`

// Init creates a progress record with every stage not started, or returns
// the existing one.
func (s *progressStore) Init(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	if err := s.init(ctx, s.store.db, repo); err != nil {
		return nil, err
	}
	return s.Get(ctx, repo)
}

// init inserts the repository and stage rows that do not exist yet.
func (s *progressStore) init(ctx context.Context, db execer, repo domain.RepositoryID) error {
	key := repoKey(repo)
	now := s.store.now()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO ingestion_progress (repo_key, owner, repo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_key) DO NOTHING
	`, key, repo.Owner, repo.Name, now, now); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}

	for _, st := range domain.Stages() {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO stage_progress (repo_key, stage, status, collection_name)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(repo_key, stage) DO NOTHING
		`, key, string(st), string(domain.StatusNotStarted), domain.CollectionName(repo, st.SourceType())); err != nil {
			return fmt.Errorf("saving stage %s: %w", st, err)
		}
	}
	return nil
}

// Get returns the progress record of a repository.
func (s *progressStore) Get(ctx context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	return s.get(ctx, s.store.db, repo)
}

func (s *progressStore) get(ctx context.Context, db execer, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	key := repoKey(repo)
	row := db.QueryRowContext(ctx, `
		SELECT owner, repo, default_branch, created_at, updated_at
		FROM ingestion_progress WHERE repo_key = ?
	`, key)

	var p domain.IngestionProgress
	if err := row.Scan(&p.Repository.Owner, &p.Repository.Name, &p.DefaultBranch,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("progress for %s: %w", repo, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scanning progress: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT "+stageColumns+" FROM stage_progress WHERE repo_key = ?", key)
	if err != nil {
		return nil, fmt.Errorf("querying stages: %w", err)
	}
	defer rows.Close()

	p.Stages = make(map[domain.Stage]domain.StageProgress, len(domain.Stages()))
	for rows.Next() {
		sp, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		p.Stages[sp.Stage] = *sp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stages: %w", err)
	}

	return &p, nil
}

// SetDefaultBranch records the repository's default branch.
func (s *progressStore) SetDefaultBranch(ctx context.Context, repo domain.RepositoryID, branch string) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE ingestion_progress SET default_branch = ?, updated_at = ? WHERE repo_key = ?
	`, branch, s.store.now(), repoKey(repo))
	if err != nil {
		return fmt.Errorf("saving default branch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("progress for %s: %w", repo, domain.ErrNotFound)
	}
	return nil
}

// List returns every tracked repository, most recently updated first.
func (s *progressStore) List(ctx context.Context) ([]domain.IngestionProgress, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT owner, repo FROM ingestion_progress ORDER BY updated_at DESC, repo_key
	`)
	if err != nil {
		return nil, fmt.Errorf("querying progress: %w", err)
	}

	var repos []domain.RepositoryID
	for rows.Next() {
		var repo domain.RepositoryID
		if err := rows.Scan(&repo.Owner, &repo.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		repos = append(repos, repo)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating progress: %w", err)
	}

	progress := make([]domain.IngestionProgress, 0, len(repos))
	for _, repo := range repos {
		p, err := s.Get(ctx, repo)
		if err != nil {
			return nil, err
		}
		progress = append(progress, *p)
	}
	return progress, nil
}

// BeginStage claims a stage for runID inside one transaction.
func (s *progressStore) BeginStage(
	ctx context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, staleAfter time.Duration,
) (domain.StageProgress, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StageProgress{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.init(ctx, tx, repo); err != nil {
		return domain.StageProgress{}, err
	}
	p, err := s.get(ctx, tx, repo)
	if err != nil {
		return domain.StageProgress{}, err
	}

	now := s.store.now()
	key := repoKey(repo)
	for _, st := range domain.Stages() {
		sp := p.Stage(st)
		if sp.Status != domain.StatusInProgress {
			continue
		}
		if !sp.IsStale(now, staleAfter) {
			return domain.StageProgress{}, fmt.Errorf("%w: %s stage of %s is running (run %s)",
				domain.ErrStageInProgress, st, repo, sp.RunID)
		}
		// The process running it stopped sending heartbeats.
		if _, err := tx.ExecContext(ctx, `
			UPDATE stage_progress SET status = ?, error = ?, completed_at = ?
			WHERE repo_key = ? AND stage = ?
		`, string(domain.StatusFailed), "abandoned: no heartbeat since "+lastBeat(sp).Format(time.RFC3339),
			now, key, string(st)); err != nil {
			return domain.StageProgress{}, fmt.Errorf("failing stale stage %s: %w", st, err)
		}
	}

	prior := p.Stage(stage)
	if _, err := tx.ExecContext(ctx, `
		UPDATE stage_progress SET
			status = ?, run_id = ?, started_at = ?, heartbeat_at = ?, completed_at = NULL,
			documents_processed = 0, chunks_processed = 0, termination_reason = '', error = '', duration_ms = 0
		WHERE repo_key = ? AND stage = ?
	`, string(domain.StatusInProgress), runID, now, now, key, string(stage)); err != nil {
		return domain.StageProgress{}, fmt.Errorf("claiming stage %s: %w", stage, err)
	}
	if err := touch(ctx, tx, key, now); err != nil {
		return domain.StageProgress{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.StageProgress{}, fmt.Errorf("committing transaction: %w", err)
	}
	return prior, nil
}

func lastBeat(sp domain.StageProgress) time.Time {
	if sp.HeartbeatAt.IsZero() {
		return sp.StartedAt
	}
	return sp.HeartbeatAt
}

// Heartbeat records live counts while runID owns the stage.
func (s *progressStore) Heartbeat(
	ctx context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, processed, chunks int,
) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE stage_progress SET heartbeat_at = ?, documents_processed = ?, chunks_processed = ?
		WHERE repo_key = ? AND stage = ? AND run_id = ? AND status = ?
	`, s.store.now(), processed, chunks, repoKey(repo), string(stage), runID, string(domain.StatusInProgress))
	if err != nil {
		return fmt.Errorf("saving heartbeat: %w", err)
	}
	return nil
}

// UpdateStage replaces a stage record.
func (s *progressStore) UpdateStage(ctx context.Context, repo domain.RepositoryID, sp domain.StageProgress) error {
	if !sp.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, sp.Stage)
	}
	if sp.CollectionName == "" {
		sp.CollectionName = domain.CollectionName(repo, sp.Stage.SourceType())
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.init(ctx, tx, repo); err != nil {
		return err
	}

	key := repoKey(repo)
	res, err := tx.ExecContext(ctx, `
		UPDATE stage_progress SET
			status = ?, documents_stored = ?, chunks_stored = ?, documents_processed = ?, chunks_processed = ?,
			collection_name = ?, termination_reason = ?, error = ?, run_id = ?,
			started_at = ?, completed_at = ?, heartbeat_at = ?, duration_ms = ?
		WHERE repo_key = ? AND stage = ? AND (? = '' OR run_id = ?)
	`, string(sp.Status), sp.DocumentsStored, sp.ChunksStored, sp.DocumentsProcessed, sp.ChunksProcessed,
		sp.CollectionName, string(sp.TerminationReason), sp.Error, sp.RunID,
		nullTime(sp.StartedAt), nullTime(sp.CompletedAt), nullTime(sp.HeartbeatAt), sp.Duration.Milliseconds(),
		key, string(sp.Stage), sp.RunID, sp.RunID)
	if err != nil {
		return fmt.Errorf("saving stage %s: %w", sp.Stage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s no longer owns the %s stage of %s",
			domain.ErrStageInProgress, sp.RunID, sp.Stage, repo)
	}
	if err := touch(ctx, tx, key, s.store.now()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes the repository's progress.
func (s *progressStore) Delete(ctx context.Context, repo domain.RepositoryID) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	key := repoKey(repo)
	if _, err := tx.ExecContext(ctx, "DELETE FROM stage_progress WHERE repo_key = ?", key); err != nil {
		return fmt.Errorf("deleting stages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ingestion_progress WHERE repo_key = ?", key); err != nil {
		return fmt.Errorf("deleting progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// touch bumps the repository's updated_at.
func touch(ctx context.Context, db execer, key string, now time.Time) error {
	if _, err := db.ExecContext(ctx,
		"UPDATE ingestion_progress SET updated_at = ? WHERE repo_key = ?", now, key); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}

// scanStage scans a single stage row.
func scanStage(row rowScanner) (*domain.StageProgress, error) {
	var sp domain.StageProgress
	var stage, status, termination string
	var startedAt, completedAt, heartbeatAt sql.NullTime
	var durationMS int64

	if err := row.Scan(&stage, &status, &sp.DocumentsStored, &sp.ChunksStored, &sp.DocumentsProcessed,
		&sp.ChunksProcessed, &sp.CollectionName, &termination, &sp.Error, &sp.RunID,
		&startedAt, &completedAt, &heartbeatAt, &durationMS); err != nil {
		return nil, fmt.Errorf("scanning stage: %w", err)
	}

	sp.Stage = domain.Stage(stage)
	sp.Status = domain.StageStatus(status)
	sp.TerminationReason = domain.TerminationReason(termination)
	sp.StartedAt = timeOf(startedAt)
	sp.CompletedAt = timeOf(completedAt)
	sp.HeartbeatAt = timeOf(heartbeatAt)
	sp.Duration = time.Duration(durationMS) * time.Millisecond
	return &sp, nil
}
