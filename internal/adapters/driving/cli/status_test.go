package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

func TestStatusCmd(t *testing.T) {
	progress := domain.NewIngestionProgress(testRepo, time.Now())
	progress.DefaultBranch = "main"
	docs := progress.Stages[domain.StageDocs]
	docs.Status = domain.StatusComplete
	docs.DocumentsStored = 12
	docs.ChunksStored = 30
	docs.TerminationReason = domain.TerminationSourceExhausted
	progress.Stages[domain.StageDocs] = docs
	code := progress.Stages[domain.StageCode]
	code.Status = domain.StatusFailed
	code.Error = "stage code failed for acme/widgets: source unavailable"
	progress.Stages[domain.StageCode] = code

	t.Run("prints per-stage progress", func(t *testing.T) {
		cleanup := setupTestServices(&mockIngestionService{progress: progress}, nil)
		defer cleanup()

		out, err := execute("status", "acme/widgets")

		require.NoError(t, err)
		assert.Contains(t, out, "Overall:        failed (25%)")
		assert.Contains(t, out, "Documents:      12")
		assert.Contains(t, out, "source-exhausted")
		assert.Contains(t, out, "source unavailable")
		assert.Contains(t, out, "Next: repolens ingest stage acme/widgets code")
	})

	t.Run("json output", func(t *testing.T) {
		cleanup := setupTestServices(&mockIngestionService{progress: progress}, nil)
		defer cleanup()

		out, err := execute("status", "acme/widgets", "--json")

		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "main", decoded["DefaultBranch"])
	})

	t.Run("unknown repository", func(t *testing.T) {
		cleanup := setupTestServices(&mockIngestionService{}, nil)
		defer cleanup()

		_, err := execute("status", "acme/widgets")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "repolens ingest start acme/widgets")
	})
}

func TestListCmd(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		cleanup := setupTestServices(&mockIngestionService{}, nil)
		defer cleanup()

		out, err := execute("list")

		require.NoError(t, err)
		assert.Contains(t, out, "No repositories ingested.")
	})

	t.Run("lists repositories", func(t *testing.T) {
		mock := &mockIngestionService{summaries: []domain.RepositorySummary{
			{Repository: testRepo, OverallStatus: domain.StatusInProgress, Completion: 50, TotalDocuments: 7},
		}}
		cleanup := setupTestServices(mock, nil)
		defer cleanup()

		out, err := execute("list")

		require.NoError(t, err)
		assert.Contains(t, out, "acme/widgets")
		assert.Contains(t, out, "50%")
	})
}

func TestClearCmd(t *testing.T) {
	t.Run("requires confirm", func(t *testing.T) {
		mock := &mockIngestionService{}
		cleanup := setupTestServices(mock, nil)
		defer cleanup()

		_, err := execute("clear", "acme/widgets")

		assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
		assert.False(t, mock.cleared)
	})

	t.Run("clears with confirm", func(t *testing.T) {
		mock := &mockIngestionService{}
		cleanup := setupTestServices(mock, nil)
		defer cleanup()

		out, err := execute("clear", "acme/widgets", "--confirm")

		require.NoError(t, err)
		assert.True(t, mock.cleared)
		assert.Contains(t, out, "Deleted collection "+domain.CollectionName(testRepo, domain.SourceDocumentation))
		assert.Contains(t, out, "Repository acme/widgets cleared.")
	})
}
