package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// Ensure UsageStore implements the interface.
var _ driven.UsageStore = (*UsageStore)(nil)

type usageEntry struct {
	action string
	repo   domain.RepositoryID
	at     time.Time
}

// UsageStore is an in-memory implementation of driven.UsageStore.
type UsageStore struct {
	mu      sync.Mutex
	entries []usageEntry
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{}
}

// RecordUsage appends one usage entry.
func (s *UsageStore) RecordUsage(_ context.Context, action string, repo domain.RepositoryID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, usageEntry{action: action, repo: repo, at: at})
	return nil
}

// CountUsage counts entries for an action since a point in time.
func (s *UsageStore) CountUsage(_ context.Context, action string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.action == action && !e.at.Before(since) {
			n++
		}
	}
	return n, nil
}
