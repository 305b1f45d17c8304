package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/services"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func setupSettingsTest(t *testing.T) *services.SettingsService {
	t.Helper()
	oldSettings := settingsService
	oldValidator := embeddingValidator
	svc := services.NewSettingsService(memory.NewConfigStore(), services.WithGetenv(func(string) string { return "" }))
	settingsService = svc
	t.Cleanup(func() {
		settingsService = oldSettings
		embeddingValidator = oldValidator
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	})
	return svc
}

func TestSettingsCmd_Show(t *testing.T) {
	setupSettingsTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"settings", "show"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Local (Ollama)")
	assert.Contains(t, buf.String(), "nomic-embed-text")
	assert.Contains(t, buf.String(), "Max merged PRs: 15 (examine up to 150)")
	assert.Contains(t, buf.String(), "public repositories only")
}

func TestSettingsCmd_Set(t *testing.T) {
	t.Run("persists a valid value", func(t *testing.T) {
		svc := setupSettingsTest(t)

		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetArgs([]string{"settings", "set", "ingestion.max_prs", "30"})

		err := rootCmd.Execute()

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Set ingestion.max_prs")
		st, err := svc.Get()
		require.NoError(t, err)
		assert.Equal(t, 30, st.Ingestion.MaxPRs)
	})

	t.Run("rejects an unknown key", func(t *testing.T) {
		setupSettingsTest(t)

		rootCmd.SetOut(new(bytes.Buffer))
		rootCmd.SetErr(new(bytes.Buffer))
		rootCmd.SetArgs([]string{"settings", "set", "search.mode", "hybrid"})

		err := rootCmd.Execute()

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestSettingsCmd_Reset(t *testing.T) {
	svc := setupSettingsTest(t)
	require.NoError(t, svc.Set("ingestion.max_prs", "30"))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"settings", "reset", "ingestion.max_prs"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Reset ingestion.max_prs")
	st, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings().Ingestion.MaxPRs, st.Ingestion.MaxPRs)
}

func TestSettingsCmd_Keys(t *testing.T) {
	setupSettingsTest(t)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"settings", "keys"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "embedding.provider = local")
	assert.Contains(t, buf.String(), "ingestion.max_issues = 100")
}

func TestSettingsCmd_Embedding(t *testing.T) {
	t.Run("configures the remote provider", func(t *testing.T) {
		svc := setupSettingsTest(t)
		var validated *domain.EmbeddingSettings
		embeddingValidator = func(_ context.Context, s *domain.EmbeddingSettings) error {
			validated = s
			return nil
		}

		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetIn(strings.NewReader("2\n\nsk-test-1234567890\n"))
		rootCmd.SetArgs([]string{"settings", "embedding"})

		err := rootCmd.Execute()

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Validating configuration... OK")
		st, err := svc.Get()
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderRemote, st.Embedding.Provider)
		assert.Equal(t, "text-embedding-3-small", st.Embedding.Model())
		assert.Equal(t, "sk-test-1234567890", st.Embedding.APIKey)
		require.NotNil(t, validated)
		assert.Equal(t, domain.ProviderRemote, validated.Provider)
	})

	t.Run("reports a failed validation", func(t *testing.T) {
		setupSettingsTest(t)
		embeddingValidator = func(context.Context, *domain.EmbeddingSettings) error {
			return errors.New("connection refused")
		}

		buf := new(bytes.Buffer)
		rootCmd.SetOut(buf)
		rootCmd.SetErr(new(bytes.Buffer))
		rootCmd.SetIn(strings.NewReader("1\n\n"))
		rootCmd.SetArgs([]string{"settings", "embedding"})

		err := rootCmd.Execute()

		require.Error(t, err)
		assert.Contains(t, buf.String(), "FAILED: connection refused")
	})
}

func TestSettingsCmd_NotConfigured(t *testing.T) {
	oldSettings := settingsService
	settingsService = nil
	defer func() {
		settingsService = oldSettings
		rootCmd.SetArgs(nil)
	}()

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"settings", "show"})

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, errSettingsNotConfigured)
}
