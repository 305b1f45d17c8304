package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrSourceUnavailable", ErrSourceUnavailable},
		{"ErrQuotaExceeded", ErrQuotaExceeded},
		{"ErrEmbeddingProviderMismatch", ErrEmbeddingProviderMismatch},
		{"ErrChunkBudgetExceeded", ErrChunkBudgetExceeded},
		{"ErrStageTimedOut", ErrStageTimedOut},
		{"ErrStageInProgress", ErrStageInProgress},
		{"ErrActionNotPermitted", ErrActionNotPermitted},
		{"ErrConfirmationRequired", ErrConfirmationRequired},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrRateLimited", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

// TestStageError tests message rendering and unwrapping
func TestStageError(t *testing.T) {
	err := &StageError{
		Stage:      StageCode,
		Repository: RepositoryID{Owner: "acme", Name: "widgets"},
		Salvaged:   40,
		Target:     100,
		Err:        fmt.Errorf("embed batch: %w", ErrQuotaExceeded),
	}

	assert.Contains(t, err.Error(), "stage code failed for acme/widgets")
	assert.Contains(t, err.Error(), "salvaged 40 of 100")
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var target *StageError
	wrapped := fmt.Errorf("ingest: %w", err)
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 40, target.Salvaged)
}

// TestStageError_NoCounts tests the message without salvage counts
func TestStageError_NoCounts(t *testing.T) {
	err := &StageError{Stage: StageDocs, Repository: RepositoryID{Owner: "a", Name: "b"}, Err: ErrSourceUnavailable}
	assert.NotContains(t, err.Error(), "salvaged")
}

// TestSuggestion tests recovery hints
func TestSuggestion(t *testing.T) {
	assert.Empty(t, Suggestion(nil))
	assert.Empty(t, Suggestion(errors.New("boom")))
	assert.Contains(t, Suggestion(fmt.Errorf("x: %w", ErrQuotaExceeded)), "local")
	assert.Contains(t, Suggestion(ErrEmbeddingProviderMismatch), "clear")
	assert.NotEmpty(t, Suggestion(&StageError{Err: ErrSourceUnavailable}))
	assert.Contains(t, Suggestion(fmt.Errorf("embed: %w", context.Canceled)), "cancelled")
}
