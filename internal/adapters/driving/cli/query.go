package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

var (
	queryRepository string
	querySource     string
	queryCollection string
	queryLimit      int
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Find the chunks most similar to a text",
	Long: `Embeds the text with the configured provider and returns the nearest
chunks of one collection, named directly with --collection or by
--repo and --source.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryRepository, "repo", "r", "", "repository as owner/name")
	queryCmd.Flags().StringVarP(&querySource, "source", "s", "docs", "stage or source type to query")
	queryCmd.Flags().StringVar(&queryCollection, "collection", "", "collection name (overrides --repo and --source)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "maximum number of results")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return withHint(fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable))
	}
	ctx := commandContext(cmd)

	var (
		matches []domain.QueryMatch
		err     error
	)
	switch {
	case queryCollection != "":
		matches, err = queryService.Query(ctx, queryCollection, args[0], queryLimit)
	case queryRepository != "":
		repo, perr := domain.ParseRepositoryID(queryRepository)
		if perr != nil {
			return perr
		}
		stage, perr := domain.ParseStage(querySource)
		var source domain.SourceType
		if perr == nil {
			source = stage.SourceType()
		} else if source = domain.SourceType(querySource); !source.IsValid() {
			return perr
		}
		matches, err = queryService.QueryRepository(ctx, repo, source, args[0], queryLimit)
	default:
		return errors.New("give --collection, or --repo with --source")
	}
	if err != nil {
		return withHint(fmt.Errorf("query failed: %w", err))
	}

	if queryJSON {
		return printJSON(cmd, matches)
	}

	if len(matches) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	for i, m := range matches {
		label := m.ID
		if path, ok := m.Metadata["file_path"].(string); ok && path != "" {
			label = path
		} else if title, ok := m.Metadata["title"].(string); ok && title != "" {
			label = title
		}
		cmd.Printf("[%d] %s %s\n", i+1, st.Label.Render(label), st.Muted.Render(fmt.Sprintf("(%.3f)", m.Score)))
		cmd.Printf("    %s\n", snippet(m.Text, 200))
	}
	return nil
}

// snippet flattens whitespace and cuts text to n bytes.
func snippet(text string, n int) string {
	return truncate(strings.Join(strings.Fields(text), " "), n)
}
