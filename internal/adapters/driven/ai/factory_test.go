package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

func TestCreateEmbeddingProvider(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.EmbeddingSettings
		wantKind domain.ProviderKind
		wantErr  bool
	}{
		{
			name:     "nil settings",
			settings: nil,
			wantErr:  true,
		},
		{
			name: "local provider",
			settings: &domain.EmbeddingSettings{
				Provider:   domain.ProviderLocal,
				LocalModel: "nomic-embed-text",
			},
			wantKind: domain.ProviderLocal,
		},
		{
			name: "remote provider",
			settings: &domain.EmbeddingSettings{
				Provider:    domain.ProviderRemote,
				RemoteModel: "text-embedding-3-small",
				APIKey:      "sk-test",
			},
			wantKind: domain.ProviderRemote,
		},
		{
			name: "remote provider without key",
			settings: &domain.EmbeddingSettings{
				Provider:    domain.ProviderRemote,
				RemoteModel: "text-embedding-3-small",
			},
			wantErr: true,
		},
		{
			name:     "unknown provider",
			settings: &domain.EmbeddingSettings{Provider: "gemini"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := CreateEmbeddingProvider(tt.settings)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
				assert.Nil(t, provider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, provider.Kind())
			assert.NoError(t, provider.Close())
		})
	}
}

func TestCreateOllamaEmbedding_Dimensions(t *testing.T) {
	settings := &domain.EmbeddingSettings{Provider: domain.ProviderLocal, LocalModel: "mxbai-embed-large"}

	provider := createOllamaEmbedding(settings)

	assert.Equal(t, 1024, provider.Dimensions())
	assert.Equal(t, "mxbai-embed-large", provider.ModelName())
}

func TestCreateAndValidateEmbeddingProvider(t *testing.T) {
	t.Run("reachable local provider", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"models":[]}`)
		}))
		defer srv.Close()

		settings := domain.DefaultSettings().Embedding
		settings.BaseURL = srv.URL

		provider, err := CreateAndValidateEmbeddingProvider(context.Background(), &settings)

		require.NoError(t, err)
		assert.Equal(t, domain.ProviderLocal, provider.Kind())
		assert.NoError(t, ValidateEmbeddingConfig(context.Background(), &settings))
	})

	t.Run("unreachable local provider", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		settings := domain.DefaultSettings().Embedding
		settings.BaseURL = url

		_, err := CreateAndValidateEmbeddingProvider(context.Background(), &settings)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "ollama serve")
	})
}
