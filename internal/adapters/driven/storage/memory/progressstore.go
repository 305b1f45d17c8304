package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
)

// Ensure ProgressStore implements the interface.
var _ driven.ProgressStore = (*ProgressStore)(nil)

// ProgressStore is an in-memory implementation of driven.ProgressStore.
type ProgressStore struct {
	mu       sync.Mutex
	progress map[string]*domain.IngestionProgress
	now      func() time.Time
}

// NewProgressStore creates a new in-memory progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress: make(map[string]*domain.IngestionProgress),
		now:      time.Now,
	}
}

func key(repo domain.RepositoryID) string {
	return strings.ToLower(repo.String())
}

// copyProgress returns a copy that shares nothing with the store.
func copyProgress(p *domain.IngestionProgress) *domain.IngestionProgress {
	out := *p
	out.Stages = maps.Clone(p.Stages)
	return &out
}

// init returns the record, creating it when missing. Callers hold mu.
func (s *ProgressStore) init(repo domain.RepositoryID) *domain.IngestionProgress {
	p, ok := s.progress[key(repo)]
	if !ok {
		p = domain.NewIngestionProgress(repo, s.now())
		s.progress[key(repo)] = p
	}
	return p
}

// Init creates a progress record with every stage not started, or returns
// the existing one.
func (s *ProgressStore) Init(_ context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProgress(s.init(repo)), nil
}

// Get returns the progress record of a repository.
func (s *ProgressStore) Get(_ context.Context, repo domain.RepositoryID) (*domain.IngestionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[key(repo)]
	if !ok {
		return nil, fmt.Errorf("progress for %s: %w", repo, domain.ErrNotFound)
	}
	return copyProgress(p), nil
}

// SetDefaultBranch records the repository's default branch.
func (s *ProgressStore) SetDefaultBranch(_ context.Context, repo domain.RepositoryID, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[key(repo)]
	if !ok {
		return fmt.Errorf("progress for %s: %w", repo, domain.ErrNotFound)
	}
	p.DefaultBranch = branch
	p.UpdatedAt = s.now()
	return nil
}

// List returns every tracked repository, most recently updated first.
func (s *ProgressStore) List(_ context.Context) ([]domain.IngestionProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IngestionProgress, 0, len(s.progress))
	for _, p := range s.progress {
		out = append(out, *copyProgress(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return key(out[i].Repository) < key(out[j].Repository)
	})
	return out, nil
}

// BeginStage claims a stage for runID.
func (s *ProgressStore) BeginStage(
	_ context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, staleAfter time.Duration,
) (domain.StageProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.init(repo)
	now := s.now()
	for _, st := range domain.Stages() {
		sp := p.Stage(st)
		if sp.Status != domain.StatusInProgress {
			continue
		}
		if !sp.IsStale(now, staleAfter) {
			return domain.StageProgress{}, fmt.Errorf("%w: %s stage of %s is running (run %s)",
				domain.ErrStageInProgress, st, repo, sp.RunID)
		}
		sp.Status = domain.StatusFailed
		sp.Error = "abandoned: no heartbeat"
		sp.CompletedAt = now
		p.Stages[st] = sp
	}

	prior := p.Stage(stage)
	claimed := prior
	claimed.Status = domain.StatusInProgress
	claimed.RunID = runID
	claimed.StartedAt = now
	claimed.HeartbeatAt = now
	claimed.CompletedAt = time.Time{}
	claimed.DocumentsProcessed = 0
	claimed.ChunksProcessed = 0
	claimed.TerminationReason = domain.TerminationNone
	claimed.Error = ""
	claimed.Duration = 0
	p.Stages[stage] = claimed
	p.UpdatedAt = now
	return prior, nil
}

// Heartbeat records live counts while runID owns the stage.
func (s *ProgressStore) Heartbeat(
	_ context.Context, repo domain.RepositoryID, stage domain.Stage, runID string, processed, chunks int,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[key(repo)]
	if !ok {
		return nil
	}
	sp := p.Stage(stage)
	if sp.RunID != runID || sp.Status != domain.StatusInProgress {
		return nil
	}
	sp.HeartbeatAt = s.now()
	sp.DocumentsProcessed = processed
	sp.ChunksProcessed = chunks
	p.Stages[stage] = sp
	return nil
}

// UpdateStage replaces a stage record.
func (s *ProgressStore) UpdateStage(_ context.Context, repo domain.RepositoryID, sp domain.StageProgress) error {
	if !sp.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, sp.Stage)
	}
	if sp.CollectionName == "" {
		sp.CollectionName = domain.CollectionName(repo, sp.Stage.SourceType())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.init(repo)
	if sp.RunID != "" && p.Stage(sp.Stage).RunID != sp.RunID {
		return fmt.Errorf("%w: run %s no longer owns the %s stage of %s",
			domain.ErrStageInProgress, sp.RunID, sp.Stage, repo)
	}
	p.Stages[sp.Stage] = sp
	p.UpdatedAt = s.now()
	return nil
}

// Delete removes the repository's progress.
func (s *ProgressStore) Delete(_ context.Context, repo domain.RepositoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, key(repo))
	return nil
}
