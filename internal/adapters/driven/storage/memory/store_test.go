package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

var testRepo = domain.RepositoryID{Owner: "acme", Name: "widgets"}

func localCollection(repo domain.RepositoryID, source domain.SourceType) domain.Collection {
	return domain.Collection{
		Name:         domain.CollectionName(repo, source),
		Repository:   repo,
		SourceType:   source,
		ProviderKind: domain.ProviderLocal,
		Dimensions:   2,
	}
}

func record(collection, documentID string, index, total int, vector ...float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:          domain.ChunkID(collection, documentID, index),
		DocumentID:  documentID,
		ChunkIndex:  index,
		TotalChunks: total,
		Text:        documentID,
		Vector:      vector,
		Metadata:    map[string]any{"doc": documentID},
	}
}

func TestVectorStore_Lifecycle(t *testing.T) {
	store := NewVectorStore()
	ctx := context.Background()

	c, err := store.EnsureCollection(ctx, localCollection(testRepo, domain.SourceIssue))
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, c.Name, []domain.VectorRecord{
		record(c.Name, "issue #1", 0, 2, 1, 0),
		record(c.Name, "issue #1", 1, 2, 0.9, 0.1),
		record(c.Name, "issue #2", 0, 1, 0, 1),
	}))

	docs, _ := store.CountDocuments(ctx, c.Name)
	chunks, _ := store.CountChunks(ctx, c.Name)
	assert.Equal(t, 2, docs)
	assert.Equal(t, 3, chunks)

	// Issue #1 shrank to one chunk.
	require.NoError(t, store.Upsert(ctx, c.Name, []domain.VectorRecord{record(c.Name, "issue #1", 0, 1, 1, 0)}))
	chunks, _ = store.CountChunks(ctx, c.Name)
	assert.Equal(t, 2, chunks)

	matches, err := store.Query(ctx, domain.QueryRequest{
		Collection: c.Name, Vector: []float32{0, 1}, ProviderKind: domain.ProviderLocal, K: 1,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "issue #2", matches[0].Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	_, err = store.Query(ctx, domain.QueryRequest{
		Collection: c.Name, Vector: []float32{0, 1}, ProviderKind: domain.ProviderRemote, K: 1,
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderMismatch)

	list, err := store.ListCollections(ctx, domain.RepositoryID{Owner: "ACME", Name: "widgets"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteCollection(ctx, c.Name))
	_, err = store.GetCollection(ctx, c.Name)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVectorStore_Mismatch(t *testing.T) {
	store := NewVectorStore()
	ctx := context.Background()

	c, err := store.EnsureCollection(ctx, localCollection(testRepo, domain.SourceCode))
	require.NoError(t, err)

	remote := localCollection(testRepo, domain.SourceCode)
	remote.ProviderKind = domain.ProviderRemote
	_, err = store.EnsureCollection(ctx, remote)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderMismatch)

	named := localCollection(testRepo, domain.SourceIssue)
	named.Model = "nomic-embed-text"
	_, err = store.EnsureCollection(ctx, named)
	require.NoError(t, err)
	named.Model = "all-minilm"
	_, err = store.EnsureCollection(ctx, named)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderMismatch)
	_, err = store.Query(ctx, domain.QueryRequest{
		Collection: named.Name, Vector: []float32{1, 0}, ProviderKind: domain.ProviderLocal, Model: "all-minilm", K: 1,
	})
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderMismatch)

	err = store.Upsert(ctx, c.Name, []domain.VectorRecord{record(c.Name, "main.go", 0, 1, 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrEmbeddingProviderMismatch)
	chunks, _ := store.CountChunks(ctx, c.Name)
	assert.Zero(t, chunks)
}

func TestProgressStore_Exclusion(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	_, err := store.Get(ctx, testRepo)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	prior, err := store.BeginStage(ctx, testRepo, domain.StageDocs, "run-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotStarted, prior.Status)

	_, err = store.BeginStage(ctx, testRepo, domain.StageCode, "run-2", time.Minute)
	assert.ErrorIs(t, err, domain.ErrStageInProgress)

	require.NoError(t, store.Heartbeat(ctx, testRepo, domain.StageDocs, "run-1", 3, 5))
	p, err := store.Get(ctx, testRepo)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stage(domain.StageDocs).DocumentsProcessed)

	stale := p.Stage(domain.StageDocs)
	stale.RunID = "run-9"
	assert.ErrorIs(t, store.UpdateStage(ctx, testRepo, stale), domain.ErrStageInProgress)

	done := p.Stage(domain.StageDocs)
	done.Status = domain.StatusComplete
	require.NoError(t, store.UpdateStage(ctx, testRepo, done))

	_, err = store.BeginStage(ctx, testRepo, domain.StageCode, "run-2", time.Minute)
	assert.NoError(t, err)

	// A crashed run is taken over once its heartbeat is stale.
	store.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = store.BeginStage(ctx, testRepo, domain.StageIssues, "run-3", time.Minute)
	require.NoError(t, err)
	p, _ = store.Get(ctx, testRepo)
	assert.Equal(t, domain.StatusFailed, p.Stage(domain.StageCode).Status)
}

func TestProgressStore_ReturnsCopies(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	p, err := store.Init(ctx, testRepo)
	require.NoError(t, err)
	sp := p.Stage(domain.StageDocs)
	sp.Status = domain.StatusComplete
	p.Stages[domain.StageDocs] = sp

	again, err := store.Get(ctx, testRepo)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotStarted, again.Stage(domain.StageDocs).Status)

	require.NoError(t, store.SetDefaultBranch(ctx, testRepo, "main"))
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "main", list[0].DefaultBranch)

	require.NoError(t, store.Delete(ctx, testRepo))
	list, _ = store.List(ctx)
	assert.Empty(t, list)
}

func TestProgressStore_ConcurrentBegin(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.BeginStage(ctx, testRepo, domain.StageDocs, "run", time.Minute); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}

func TestUsageStore(t *testing.T) {
	store := NewUsageStore()
	ctx := context.Background()
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordUsage(ctx, "ingest_stage", testRepo, since.Add(-time.Second)))
	require.NoError(t, store.RecordUsage(ctx, "ingest_stage", testRepo, since))
	require.NoError(t, store.RecordUsage(ctx, "similarity_query", testRepo, since))

	n, err := store.CountUsage(ctx, "ingest_stage", since)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConfigStore(t *testing.T) {
	store := NewConfigStore(map[string]any{"embedding.provider": "remote"})

	require.NoError(t, store.Set("ingestion.max_prs", 20))
	require.NoError(t, store.Set("fetch.use_clone", false))

	v, ok := store.Get("ingestion.max_prs")
	require.True(t, ok)
	assert.Equal(t, 20, v)
	v, ok = store.Get("embedding.provider")
	require.True(t, ok)
	assert.Equal(t, "remote", v)

	assert.Equal(t, []string{"embedding.provider", "fetch.use_clone", "ingestion.max_prs"}, store.Keys())

	require.NoError(t, store.Delete("fetch.use_clone"))
	require.NoError(t, store.Delete("never.set"))
	_, ok = store.Get("fetch.use_clone")
	assert.False(t, ok)
	assert.Equal(t, ":memory:", store.Path())
}
