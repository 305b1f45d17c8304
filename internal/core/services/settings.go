package services

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driven"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedLocalModel  = "embedding.local_model"
	keyEmbedRemoteModel = "embedding.remote_model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedCallTimeout = "embedding.call_timeout"
	keyEmbedBatchSize   = "embedding.batch_size"

	keyMaxIssues          = "ingestion.max_issues"
	keyMaxPRs             = "ingestion.max_prs"
	keyPRBudget           = "ingestion.pr_budget"
	keyExamMultiplier     = "ingestion.examination_multiplier"
	keyExamCap            = "ingestion.examination_cap"
	keyYieldInterval      = "ingestion.yield_interval"
	keyStaleAfter         = "ingestion.stale_after"
	keyResponseBudget     = "ingestion.response_budget"
	keyMaxDiffBytes       = "ingestion.max_diff_bytes"
	keyMaxDiscussionBytes = "ingestion.max_discussion_bytes"
	keyMaxFileBytes       = "ingestion.max_file_bytes"
	keyMaxDocFiles        = "ingestion.max_doc_files"
	keyMaxCodeFiles       = "ingestion.max_code_files"

	keyDataDir           = "storage.data_dir"
	keyGitHubToken       = "github.token"
	keyUseClone          = "fetch.use_clone"
	keyMonthlyStageLimit = "license.monthly_stage_limit"
	keyMetricsAddr       = "metrics.addr"
)

// Environment variables that override the config file.
//
//nolint:gosec // G101: These are variable names, not actual credentials.
const (
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvOpenAIKey   = "OPENAI_API_KEY"
	EnvProvider    = "REPOLENS_PROVIDER"
	EnvDataDir     = "REPOLENS_DATA_DIR"
	EnvOllamaHost  = "OLLAMA_HOST"
)

// settingKind is how a key's value is parsed and validated.
type settingKind int

const (
	kindString settingKind = iota
	kindSecret
	kindInt
	kindBool
	kindDuration
	kindProvider
)

// SettingsService assembles settings from defaults, the config store and
// the environment, in that order of precedence.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithGetenv replaces os.Getenv for environment overrides.
func WithGetenv(getenv func(string) string) SettingsOption {
	return func(s *SettingsService) {
		s.getenv = getenv
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, opts ...SettingsOption) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the effective settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	st := domain.DefaultSettings()

	if v := s.lookupString(keyEmbedProvider); v != "" {
		kind, ok := domain.ParseProviderKind(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s = %q", domain.ErrInvalidInput, keyEmbedProvider, v)
		}
		st.Embedding.Provider = kind
	}
	st.Embedding.LocalModel = s.getString(keyEmbedLocalModel, st.Embedding.LocalModel)
	st.Embedding.RemoteModel = s.getString(keyEmbedRemoteModel, st.Embedding.RemoteModel)
	st.Embedding.BaseURL = s.lookupString(keyEmbedBaseURL)
	st.Embedding.APIKey = s.lookupString(keyEmbedAPIKey)
	st.Embedding.CallTimeout = s.getDuration(keyEmbedCallTimeout, st.Embedding.CallTimeout)
	st.Embedding.BatchSize = s.getInt(keyEmbedBatchSize, st.Embedding.BatchSize)

	in := &st.Ingestion
	in.MaxIssues = s.getInt(keyMaxIssues, in.MaxIssues)
	in.MaxPRs = s.getInt(keyMaxPRs, in.MaxPRs)
	in.PRBudget = s.getDuration(keyPRBudget, in.PRBudget)
	in.ExaminationMultiplier = s.getInt(keyExamMultiplier, in.ExaminationMultiplier)
	in.ExaminationCap = s.getInt(keyExamCap, in.ExaminationCap)
	in.YieldInterval = s.getDuration(keyYieldInterval, in.YieldInterval)
	in.StaleAfter = s.getDuration(keyStaleAfter, in.StaleAfter)
	in.ResponseBudget = s.getDuration(keyResponseBudget, in.ResponseBudget)
	in.MaxDiffBytes = s.getInt(keyMaxDiffBytes, in.MaxDiffBytes)
	in.MaxDiscussionBytes = s.getInt(keyMaxDiscussionBytes, in.MaxDiscussionBytes)
	in.MaxFileBytes = s.getInt(keyMaxFileBytes, in.MaxFileBytes)
	in.MaxDocFiles = s.getInt(keyMaxDocFiles, in.MaxDocFiles)
	in.MaxCodeFiles = s.getInt(keyMaxCodeFiles, in.MaxCodeFiles)

	for _, kind := range []domain.ProviderKind{domain.ProviderLocal, domain.ProviderRemote} {
		for _, source := range domain.SourceTypes() {
			st.Chunking.Ceilings[kind][source] = s.getInt(ceilingKey(kind, source), st.Chunking.Ceilings[kind][source])
		}
	}
	for _, source := range domain.SourceTypes() {
		st.Chunking.MaxChunks[source] = s.getInt(maxChunksKey(source), st.Chunking.MaxChunks[source])
	}

	st.DataDir = s.lookupString(keyDataDir)
	st.GitHubToken = s.lookupString(keyGitHubToken)
	st.UseClone = s.getBool(keyUseClone, st.UseClone)
	st.MonthlyStageLimit = s.getInt(keyMonthlyStageLimit, st.MonthlyStageLimit)
	st.MetricsAddr = s.lookupString(keyMetricsAddr)

	if err := s.applyEnv(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// applyEnv overrides settings from the environment.
func (s *SettingsService) applyEnv(st *domain.Settings) error {
	if v := s.getenv(EnvGitHubToken); v != "" {
		st.GitHubToken = v
	}
	if v := s.getenv(EnvOpenAIKey); v != "" {
		st.Embedding.APIKey = v
	}
	if v := s.getenv(EnvProvider); v != "" {
		kind, ok := domain.ParseProviderKind(strings.ToLower(v))
		if !ok {
			return fmt.Errorf("%w: %s = %q, want local or remote", domain.ErrInvalidInput, EnvProvider, v)
		}
		st.Embedding.Provider = kind
	}
	if v := s.getenv(EnvDataDir); v != "" {
		st.DataDir = v
	}
	if v := s.getenv(EnvOllamaHost); v != "" && st.Embedding.Provider == domain.ProviderLocal {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		st.Embedding.BaseURL = v
	}
	return nil
}

// Set validates and persists one configuration key.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds()[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseSetting(kind, strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Reset removes a key from the config store so its default, or its
// environment override, applies again.
func (s *SettingsService) Reset(key string) error {
	if _, ok := settingKinds()[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	if err := s.configStore.Delete(key); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// Keys returns every configurable key with its effective value. Secrets are
// reported as "(set)" or "".
func (s *SettingsService) Keys() (map[string]string, error) {
	st, err := s.Get()
	if err != nil {
		return nil, err
	}

	in := st.Ingestion
	values := map[string]string{
		keyEmbedProvider:      st.Embedding.Provider.String(),
		keyEmbedLocalModel:    st.Embedding.LocalModel,
		keyEmbedRemoteModel:   st.Embedding.RemoteModel,
		keyEmbedBaseURL:       st.Embedding.BaseURL,
		keyEmbedAPIKey:        mask(st.Embedding.APIKey),
		keyEmbedCallTimeout:   st.Embedding.CallTimeout.String(),
		keyEmbedBatchSize:     strconv.Itoa(st.Embedding.EffectiveBatchSize()),
		keyMaxIssues:          strconv.Itoa(in.MaxIssues),
		keyMaxPRs:             strconv.Itoa(in.MaxPRs),
		keyPRBudget:           in.PRBudget.String(),
		keyExamMultiplier:     strconv.Itoa(in.ExaminationMultiplier),
		keyExamCap:            strconv.Itoa(in.ExaminationCap),
		keyYieldInterval:      in.YieldInterval.String(),
		keyStaleAfter:         in.StaleAfter.String(),
		keyResponseBudget:     in.ResponseBudget.String(),
		keyMaxDiffBytes:       strconv.Itoa(in.MaxDiffBytes),
		keyMaxDiscussionBytes: strconv.Itoa(in.MaxDiscussionBytes),
		keyMaxFileBytes:       strconv.Itoa(in.MaxFileBytes),
		keyMaxDocFiles:        strconv.Itoa(in.MaxDocFiles),
		keyMaxCodeFiles:       strconv.Itoa(in.MaxCodeFiles),
		keyDataDir:            st.DataDir,
		keyGitHubToken:        mask(st.GitHubToken),
		keyUseClone:           strconv.FormatBool(st.UseClone),
		keyMonthlyStageLimit:  strconv.Itoa(st.MonthlyStageLimit),
		keyMetricsAddr:        st.MetricsAddr,
	}
	for _, kind := range []domain.ProviderKind{domain.ProviderLocal, domain.ProviderRemote} {
		for _, source := range domain.SourceTypes() {
			values[ceilingKey(kind, source)] = strconv.Itoa(st.Chunking.Ceiling(kind, source))
		}
	}
	for _, source := range domain.SourceTypes() {
		values[maxChunksKey(source)] = strconv.Itoa(st.Chunking.MaxChunks[source])
	}
	return values, nil
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// SettingKeys returns the configurable keys, sorted.
func SettingKeys() []string {
	kinds := settingKinds()
	keys := make([]string, 0, len(kinds))
	for k := range kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func settingKinds() map[string]settingKind {
	kinds := map[string]settingKind{
		keyEmbedProvider:      kindProvider,
		keyEmbedLocalModel:    kindString,
		keyEmbedRemoteModel:   kindString,
		keyEmbedBaseURL:       kindString,
		keyEmbedAPIKey:        kindSecret,
		keyEmbedCallTimeout:   kindDuration,
		keyEmbedBatchSize:     kindInt,
		keyMaxIssues:          kindInt,
		keyMaxPRs:             kindInt,
		keyPRBudget:           kindDuration,
		keyExamMultiplier:     kindInt,
		keyExamCap:            kindInt,
		keyYieldInterval:      kindDuration,
		keyStaleAfter:         kindDuration,
		keyResponseBudget:     kindDuration,
		keyMaxDiffBytes:       kindInt,
		keyMaxDiscussionBytes: kindInt,
		keyMaxFileBytes:       kindInt,
		keyMaxDocFiles:        kindInt,
		keyMaxCodeFiles:       kindInt,
		keyDataDir:            kindString,
		keyGitHubToken:        kindSecret,
		keyUseClone:           kindBool,
		keyMonthlyStageLimit:  kindInt,
		keyMetricsAddr:        kindString,
	}
	for _, kind := range []domain.ProviderKind{domain.ProviderLocal, domain.ProviderRemote} {
		for _, source := range domain.SourceTypes() {
			kinds[ceilingKey(kind, source)] = kindInt
		}
	}
	for _, source := range domain.SourceTypes() {
		kinds[maxChunksKey(source)] = kindInt
	}
	return kinds
}

// parseSetting converts a command-line value to the stored type.
func parseSetting(kind settingKind, value string) (any, error) {
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", value)
		}
		if n < 0 {
			return nil, fmt.Errorf("%d is negative", n)
		}
		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not true or false", value)
		}
		return b, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not a duration such as 4m30s", value)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s is not positive", d)
		}
		return d.String(), nil
	case kindProvider:
		p, ok := domain.ParseProviderKind(strings.ToLower(value))
		if !ok {
			return nil, fmt.Errorf("%q is not local or remote", value)
		}
		return p.String(), nil
	default:
		return value, nil
	}
}

func ceilingKey(kind domain.ProviderKind, source domain.SourceType) string {
	return "chunking." + kind.String() + "." + source.String()
}

func maxChunksKey(source domain.SourceType) string {
	return "chunking.max_chunks." + source.String()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "(set)"
}

// Helper methods for reading config with defaults. Stores hand back values
// as their format decoded them, so numbers may arrive as int, int64 or
// float64 and durations as strings or whole seconds.

func (s *SettingsService) lookupString(key string) string {
	val, _ := s.configStore.Get(key)
	str, _ := val.(string)
	return str
}

func (s *SettingsService) getString(key, defaultVal string) string {
	if val := s.lookupString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultVal
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	var d time.Duration
	switch v := val.(type) {
	case time.Duration:
		d = v
	case string:
		d, _ = time.ParseDuration(v)
	case int64:
		d = time.Duration(v) * time.Second
	case int:
		d = time.Duration(v) * time.Second
	}
	if d <= 0 {
		return defaultVal
	}
	return d
}
