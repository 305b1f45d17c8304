package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/repolens/internal/core/domain"
)

var (
	statusJSON   bool
	listJSON     bool
	clearConfirm bool
)

var statusCmd = &cobra.Command{
	Use:   "status <owner/name>",
	Short: "Show the ingestion progress of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested repositories",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var clearCmd = &cobra.Command{
	Use:   "clear <owner/name>",
	Short: "Delete the collections and progress of a repository",
	Long: `Delete every collection and the progress record of a repository.

This cannot be undone and requires --confirm.`,
	Args: cobra.ExactArgs(1),
	RunE: runClear,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output progress as JSON")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output repositories as JSON")
	clearCmd.Flags().BoolVar(&clearConfirm, "confirm", false, "confirm deletion")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(clearCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}

	p, err := ingestionService.GetStatus(commandContext(cmd), repo)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s has not been ingested: run 'repolens ingest start %s' first", repo, repo)
	}
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if statusJSON {
		return printJSON(cmd, p)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Repository " + p.Repository.String()))
	if p.DefaultBranch != "" {
		cmd.Printf("  Default branch: %s\n", p.DefaultBranch)
	}
	cmd.Printf("  Overall:        %s (%.0f%%)\n", st.Status(p.OverallStatus()), p.CompletionPercentage())
	cmd.Printf("  Documents:      %d\n", p.TotalDocuments())
	cmd.Printf("  Chunks:         %d\n", p.TotalChunks())
	cmd.Println()

	for _, stage := range domain.Stages() {
		sp := p.Stage(stage)
		line := fmt.Sprintf("  %-14s %-12s %5d docs %6d chunks", stage, st.Status(sp.Status), sp.DocumentsStored, sp.ChunksStored)
		if sp.TerminationReason != domain.TerminationNone {
			line += "  " + st.Muted.Render(sp.TerminationReason.String())
		}
		cmd.Println(line)
		if sp.Error != "" {
			cmd.Printf("  %14s %s\n", "", st.Error.Render(sp.Error))
		}
	}

	if next := p.NextStage(); next != "" {
		cmd.Println()
		cmd.Printf("Next: repolens ingest stage %s %s\n", p.Repository, next)
	}
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}

	summaries, err := ingestionService.ListRepositories(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	if listJSON {
		return printJSON(cmd, summaries)
	}

	if len(summaries) == 0 {
		cmd.Println("No repositories ingested.")
		return nil
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Repositories"))
	for i := range summaries {
		s := summaries[i]
		updated := ""
		if !s.UpdatedAt.IsZero() {
			updated = st.Muted.Render(s.UpdatedAt.Local().Format(time.DateTime))
		}
		cmd.Printf("  %-40s %-12s %4.0f%% %6d docs  %s\n",
			s.Repository, st.Status(s.OverallStatus), s.Completion, s.TotalDocuments, updated)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}
	if !clearConfirm {
		return fmt.Errorf("%w: pass --confirm to delete every collection of %s", domain.ErrConfirmationRequired, repo)
	}

	result, err := ingestionService.ClearRepository(commandContext(cmd), repo, true)
	if err != nil {
		return withHint(err)
	}

	for _, name := range result.DeletedCollections {
		cmd.Printf("Deleted collection %s\n", name)
	}
	cmd.Printf("Repository %s cleared.\n", repo)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
