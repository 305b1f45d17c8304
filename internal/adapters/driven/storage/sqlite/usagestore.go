package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// ==================== Usage Store ====================

// usageStore implements driven.UsageStore.
type usageStore struct {
	store *Store
}

var _ driven.UsageStore = (*usageStore)(nil)

// RecordUsage appends one usage entry.
func (s *usageStore) RecordUsage(ctx context.Context, action string, repo domain.RepositoryID, at time.Time) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO usage (action, repo_key, recorded_at) VALUES (?, ?, ?)
	`, action, repoKey(repo), at.UTC())
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// CountUsage counts entries for an action since a point in time.
func (s *usageStore) CountUsage(ctx context.Context, action string, since time.Time) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage WHERE action = ? AND recorded_at >= ?
	`, action, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting usage: %w", err)
	}
	return n, nil
}
