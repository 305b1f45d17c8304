package domain

import "time"

const unknownDescription = "Unknown"

// ProviderKind identifies which class of embedding provider is in use.
type ProviderKind string

// Available provider kinds.
const (
	// ProviderRemote is a hosted embedding API with quotas.
	ProviderRemote ProviderKind = "remote"

	// ProviderLocal is an embedding model served on this machine.
	ProviderLocal ProviderKind = "local"
)

// ParseProviderKind parses a provider kind, accepting the backend names
// "openai" and "ollama" as aliases.
func ParseProviderKind(s string) (ProviderKind, bool) {
	switch s {
	case "remote", "openai":
		return ProviderRemote, true
	case "local", "ollama":
		return ProviderLocal, true
	default:
		return "", false
	}
}

// IsValid returns true if the provider kind is recognised.
func (k ProviderKind) IsValid() bool {
	return k == ProviderRemote || k == ProviderLocal
}

// String returns the string representation.
func (k ProviderKind) String() string {
	return string(k)
}

// Description returns a human-readable description of the provider kind.
func (k ProviderKind) Description() string {
	switch k {
	case ProviderRemote:
		return "Remote (OpenAI-compatible API)"
	case ProviderLocal:
		return "Local (Ollama)"
	default:
		return unknownDescription
	}
}

// DefaultBatchSize returns the embedding sub-batch size for the kind.
// Remote APIs get small batches so a quota failure loses little work.
func (k ProviderKind) DefaultBatchSize() int {
	if k == ProviderLocal {
		return 100
	}
	return 10
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider selects the remote or local provider.
	Provider ProviderKind

	// LocalModel is the Ollama model id.
	LocalModel string

	// RemoteModel is the hosted embedding model name.
	RemoteModel string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey is the remote provider key.
	APIKey string

	// CallTimeout bounds a single embedding request.
	CallTimeout time.Duration

	// BatchSize overrides the provider's default sub-batch size.
	BatchSize int
}

// Model returns the model name for the selected provider.
func (e EmbeddingSettings) Model() string {
	if e.Provider == ProviderLocal {
		return e.LocalModel
	}
	return e.RemoteModel
}

// EffectiveBatchSize returns BatchSize or the provider default.
func (e EmbeddingSettings) EffectiveBatchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return e.Provider.DefaultBatchSize()
}

// IsConfigured returns true if the provider can be constructed.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Model() == "" {
		return false
	}
	if e.Provider == ProviderRemote && e.APIKey == "" {
		return false
	}
	return true
}

// IngestionSettings holds the stage limits and timing.
type IngestionSettings struct {
	MaxIssues             int
	MaxPRs                int
	PRBudget              time.Duration
	ExaminationMultiplier int
	ExaminationCap        int
	YieldInterval         time.Duration

	// StaleAfter is how long an in-progress stage may go without a
	// heartbeat before another run may take it over.
	StaleAfter time.Duration

	// ResponseBudget is how long a tool call waits for a stage before
	// returning a running status.
	ResponseBudget time.Duration

	// MaxDiffBytes caps each rendered PR file diff.
	MaxDiffBytes int

	// MaxDiscussionBytes caps an issue's rendered comment thread.
	MaxDiscussionBytes int

	// MaxFileBytes skips repository files larger than this.
	MaxFileBytes int

	// MaxDocFiles and MaxCodeFiles cap the files read per stage, taken in
	// priority order.
	MaxDocFiles  int
	MaxCodeFiles int
}

// ScanPolicy returns the PR scan policy.
func (s IngestionSettings) ScanPolicy() ScanPolicy {
	return ScanPolicy{
		ExaminationMultiplier: s.ExaminationMultiplier,
		AbsoluteCap:           s.ExaminationCap,
	}
}

// DefaultLimits returns the limits used when a caller passes none.
func (s IngestionSettings) DefaultLimits() Limits {
	return Limits{
		MaxIssues:       s.MaxIssues,
		MaxPRs:          s.MaxPRs,
		MaxToExamine:    s.ScanPolicy().MaxToExamine(s.MaxPRs),
		WallClockBudget: s.PRBudget,
	}
}

// ChunkingSettings holds chunk ceilings (characters) and caps per source.
type ChunkingSettings struct {
	Ceilings  map[ProviderKind]map[SourceType]int
	MaxChunks map[SourceType]int
}

// Ceiling returns the ceiling for a provider and source type, or 0.
func (c ChunkingSettings) Ceiling(kind ProviderKind, source SourceType) int {
	if c.Ceilings == nil {
		return 0
	}
	return c.Ceilings[kind][source]
}

// DefaultChunkingSettings returns the default ceilings and caps.
func DefaultChunkingSettings() ChunkingSettings {
	return ChunkingSettings{
		Ceilings: map[ProviderKind]map[SourceType]int{
			ProviderLocal: {
				SourceDocumentation: 10000,
				SourceCode:          10000,
				SourceIssue:         6000,
				SourcePullRequest:   8000,
			},
			ProviderRemote: {
				SourceDocumentation: 6000,
				SourceCode:          6000,
				SourceIssue:         4000,
				SourcePullRequest:   5000,
			},
		},
		MaxChunks: map[SourceType]int{
			SourceDocumentation: 0,
			SourceCode:          0,
			SourceIssue:         1,
			SourcePullRequest:   2,
		},
	}
}

// Settings holds all application settings.
type Settings struct {
	Embedding EmbeddingSettings
	Ingestion IngestionSettings
	Chunking  ChunkingSettings

	// DataDir holds the SQLite database.
	DataDir string

	// GitHubToken authenticates GitHub API calls and clones. Optional.
	GitHubToken string

	// UseClone prefers a shallow git clone over the tree API.
	UseClone bool

	// MonthlyStageLimit caps stage runs per calendar month; 0 is unlimited.
	MonthlyStageLimit int

	// MetricsAddr, when set, serves Prometheus metrics in HTTP mode.
	MetricsAddr string
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Provider:    ProviderLocal,
			LocalModel:  DefaultEmbeddingModels()[ProviderLocal],
			RemoteModel: DefaultEmbeddingModels()[ProviderRemote],
			CallTimeout: 60 * time.Second,
		},
		Ingestion: IngestionSettings{
			MaxIssues:             DefaultMaxIssues,
			MaxPRs:                DefaultMaxPRs,
			PRBudget:              DefaultPRBudget,
			ExaminationMultiplier: DefaultExaminationMultiplier,
			ExaminationCap:        DefaultExaminationCap,
			YieldInterval:         DefaultYieldInterval,
			StaleAfter:            10 * time.Minute,
			ResponseBudget:        4*time.Minute + 30*time.Second,
			MaxDiffBytes:          4000,
			MaxDiscussionBytes:    4000,
			MaxFileBytes:          1 << 20,
			MaxDocFiles:           100,
			MaxCodeFiles:          400,
		},
		Chunking: DefaultChunkingSettings(),
		UseClone: true,
	}
}

// DefaultEmbeddingModels returns default models for each provider kind.
func DefaultEmbeddingModels() map[ProviderKind]string {
	return map[ProviderKind]string{
		ProviderLocal:  "nomic-embed-text",
		ProviderRemote: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
