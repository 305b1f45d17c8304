package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/repolens/internal/core/domain"
)

// fixedQuota implements driven.QuotaReporter.
type fixedQuota domain.APIQuota

func (q fixedQuota) Quota() domain.APIQuota { return domain.APIQuota(q) }

func reachable(context.Context, *domain.EmbeddingSettings) error { return nil }

func TestHealthService_Check(t *testing.T) {
	settings := domain.DefaultSettings().Embedding

	t.Run("healthy", func(t *testing.T) {
		svc := NewHealthService(settings, reachable, memory.NewProgressStore(), time.Minute,
			WithDatabasePath("/data/repolens.db"),
			WithQuotaReporter(fixedQuota{Limit: 5000, Remaining: 4000}),
		)

		report, err := svc.Check(context.Background())

		require.NoError(t, err)
		assert.True(t, report.Healthy)
		assert.True(t, report.Embedding.Reachable)
		assert.Equal(t, settings.Provider, report.Embedding.Provider)
		assert.Equal(t, "/data/repolens.db", report.DatabasePath)
		require.NotNil(t, report.GitHubQuota)
		assert.Equal(t, 4000, report.GitHubQuota.Remaining)
		assert.Empty(t, report.StuckStages)
	})

	t.Run("unreachable provider", func(t *testing.T) {
		refused := func(context.Context, *domain.EmbeddingSettings) error {
			return errors.New("connection refused")
		}
		svc := NewHealthService(settings, refused, memory.NewProgressStore(), time.Minute)

		report, err := svc.Check(context.Background())

		require.NoError(t, err)
		assert.False(t, report.Healthy)
		assert.False(t, report.Embedding.Reachable)
		assert.Contains(t, report.Embedding.Error, "connection refused")
		assert.Nil(t, report.GitHubQuota)
	})

	t.Run("no validator", func(t *testing.T) {
		report, err := NewHealthService(settings, nil, nil, 0).Check(context.Background())

		require.NoError(t, err)
		assert.False(t, report.Embedding.Reachable)
		assert.NotEmpty(t, report.Embedding.Error)
	})

	t.Run("exhausted quota", func(t *testing.T) {
		now := time.Now()
		svc := NewHealthService(settings, reachable, nil, time.Minute,
			WithHealthClock(func() time.Time { return now }),
			WithQuotaReporter(fixedQuota{Limit: 5000, Remaining: 0, Reset: now.Add(time.Hour)}),
		)

		report, err := svc.Check(context.Background())

		require.NoError(t, err)
		assert.False(t, report.Healthy)
	})

	t.Run("stale in-progress stage", func(t *testing.T) {
		ctx := context.Background()
		progress := memory.NewProgressStore()
		_, err := progress.BeginStage(ctx, testRepo, domain.StageCode, "run-1", time.Minute)
		require.NoError(t, err)

		fresh, err := NewHealthService(settings, reachable, progress, 10*time.Minute).Check(ctx)
		require.NoError(t, err)
		assert.Empty(t, fresh.StuckStages)
		assert.True(t, fresh.Healthy)

		later := func() time.Time { return time.Now().Add(time.Hour) }
		report, err := NewHealthService(settings, reachable, progress, 10*time.Minute, WithHealthClock(later)).Check(ctx)
		require.NoError(t, err)

		assert.False(t, report.Healthy)
		require.Len(t, report.StuckStages, 1)
		stuck := report.StuckStages[0]
		assert.Equal(t, testRepo, stuck.Repository)
		assert.Equal(t, domain.StageCode, stuck.Stage)
		assert.Equal(t, "run-1", stuck.RunID)
		assert.False(t, stuck.LastHeartbeat.IsZero())
	})
}
