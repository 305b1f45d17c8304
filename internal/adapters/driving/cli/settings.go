package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

// errSettingsNotConfigured is returned when no settings service is set.
var errSettingsNotConfigured = errors.New("settings service not configured")

// embeddingValidator pings a provider built from the given settings.
// Optional: without it the embedding wizard skips validation.
var embeddingValidator func(ctx context.Context, settings *domain.EmbeddingSettings) error

// SetEmbeddingValidator sets the check run after the embedding wizard.
func SetEmbeddingValidator(v func(ctx context.Context, settings *domain.EmbeddingSettings) error) {
	embeddingValidator = v
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, ingestion limits and storage.

Settings are read from defaults, then the config file, then the
environment (GITHUB_TOKEN, OPENAI_API_KEY, REPOLENS_PROVIDER,
REPOLENS_DATA_DIR, OLLAMA_HOST). A .env file in the working directory
is loaded into the environment first.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one setting",
	Long: `Set one setting in the config file.

Examples:
  repolens settings set embedding.provider remote
  repolens settings set ingestion.max_prs 30
  repolens settings set ingestion.pr_budget 6m`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset <key>",
	Short: "Remove one setting from the config file",
	Long: `Remove one setting from the config file so its default applies again.
An environment override for the key still takes precedence.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsReset,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every setting with its effective value",
	RunE:  runSettingsKeys,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long:  `Configure the embedding provider used for ingestion and queries.`,
	RunE:  runSettingsEmbedding,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsResetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Current Settings"))
	cmd.Println()

	// Embedding settings
	cmd.Println(st.Label.Render("[Embedding]"))
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model())
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Provider == domain.ProviderRemote {
		if settings.Embedding.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Embedding.APIKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	cmd.Printf("  Batch size: %d\n", settings.Embedding.EffectiveBatchSize())
	status := st.Success.Render("configured")
	if !settings.Embedding.IsConfigured() {
		status = st.Warning.Render("not configured")
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()

	// Ingestion settings
	in := settings.Ingestion
	cmd.Println(st.Label.Render("[Ingestion]"))
	cmd.Printf("  Max issues: %d\n", in.MaxIssues)
	cmd.Printf("  Max merged PRs: %d (examine up to %d)\n", in.MaxPRs, in.ScanPolicy().MaxToExamine(in.MaxPRs))
	cmd.Printf("  PR budget: %s\n", in.PRBudget)
	cmd.Printf("  Response budget: %s\n", in.ResponseBudget)
	cmd.Printf("  Stale after: %s\n", in.StaleAfter)
	cmd.Println()

	// Storage settings
	cmd.Println(st.Label.Render("[Storage]"))
	dataDir := settings.DataDir
	if dataDir == "" {
		dataDir = "~/.repolens (default)"
	}
	cmd.Printf("  Data directory: %s\n", dataDir)
	cmd.Printf("  Config file: %s\n", settingsService.Path())
	cmd.Println()

	// GitHub settings
	cmd.Println(st.Label.Render("[GitHub]"))
	if settings.GitHubToken != "" {
		cmd.Printf("  Token: %s\n", maskAPIKey(settings.GitHubToken))
	} else {
		cmd.Printf("  Token: (not set, public repositories only)\n")
	}
	cmd.Printf("  Shallow clone: %s\n", strconv.FormatBool(settings.UseClone))

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	if err := settingsService.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s\n", args[0])
	return nil
}

func runSettingsReset(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	if err := settingsService.Reset(args[0]); err != nil {
		return fmt.Errorf("failed to reset %s: %w", args[0], err)
	}
	cmd.Printf("Reset %s\n", args[0])
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	values, err := settingsService.Keys()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("%s = %s\n", k, values[k])
	}
	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errSettingsNotConfigured
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	return configureEmbeddingProvider(cmd, reader)
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	cmd.Println("Select Embedding Provider")
	providers := []domain.ProviderKind{domain.ProviderLocal, domain.ProviderRemote}
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	input := readLine(reader)
	idx := parseChoice(input, len(providers), 1)
	selectedProvider := providers[idx-1]

	// Get model
	defaults := domain.DefaultEmbeddingModels()
	defaultModel := defaults[selectedProvider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	// Get API key if needed
	var apiKey string
	if selectedProvider == domain.ProviderRemote {
		cmd.Print("Enter API key (blank to use OPENAI_API_KEY): ")
		apiKey = readPassword(reader)
		cmd.Println()
	}

	modelKey := "embedding.local_model"
	if selectedProvider == domain.ProviderRemote {
		modelKey = "embedding.remote_model"
	}
	updates := [][2]string{
		{"embedding.provider", selectedProvider.String()},
		{modelKey, model},
	}
	if apiKey != "" {
		updates = append(updates, [2]string{"embedding.api_key", apiKey})
	}
	for _, u := range updates {
		if err := settingsService.Set(u[0], u[1]); err != nil {
			return fmt.Errorf("failed to configure embedding provider: %w", err)
		}
	}

	// Validate the configuration by pinging the service
	if embeddingValidator != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		cmd.Print("Validating configuration... ")
		if err := embeddingValidator(commandContext(cmd), &settings.Embedding); err != nil {
			cmd.Printf("FAILED: %v\n", err)
			return fmt.Errorf("embedding configuration validation failed: %w", err)
		}
		cmd.Println("OK")
	}

	cmd.Printf("Embedding provider configured: %s (%s)\n", selectedProvider.Description(), model)
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads a secret without echo from an interactive stdin and
// falls back to reading a line from reader.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
