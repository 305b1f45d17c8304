package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), NoWait(), "test", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), NoWait(), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("503 service unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestDo_QuotaIsNeverRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), NoWait(), "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("embed batch: %w", domain.ErrQuotaExceeded)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, NoWait(), "test", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("interrupted")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("timeout"), true},
		{"quota", domain.ErrQuotaExceeded, false},
		{"source unavailable", fmt.Errorf("get repo: %w", domain.ErrSourceUnavailable), false},
		{"mismatch", domain.ErrEmbeddingProviderMismatch, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"transient overrides", Transient(domain.ErrNotFound), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
