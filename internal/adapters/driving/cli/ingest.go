package cli

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/core/ports/driving"
	"github.com/custodia-labs/repolens/internal/logger"
)

var (
	ingestMaxIssues int
	ingestMaxPRs    int
	ingestPRBudget  time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a GitHub repository",
	Long: `Ingest a GitHub repository into vector collections.

Ingestion runs in four stages: docs, code, issues and pull_requests.
Each stage writes its own collection and can be run or retried on its own.`,
}

var ingestStartCmd = &cobra.Command{
	Use:   "start <owner/name>",
	Short: "Validate a repository and show its stage plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestStart,
}

var ingestStageCmd = &cobra.Command{
	Use:   "stage <owner/name> <stage>",
	Short: "Run one ingestion stage",
	Long: `Run one ingestion stage to completion.

Stages: docs, code, issues, pull_requests (aliases: documentation, prs).`,
	Args: cobra.ExactArgs(2),
	RunE: runIngestStage,
}

var ingestAllCmd = &cobra.Command{
	Use:   "all <owner/name>",
	Short: "Run every ingestion stage in order",
	Long: `Run every ingestion stage in order. A failed stage does not stop
the stages after it.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestAll,
}

var ingestRetryCmd = &cobra.Command{
	Use:   "retry <owner/name>",
	Short: "Rerun failed or stale stages",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestRetry,
}

func init() {
	for _, c := range []*cobra.Command{ingestStageCmd, ingestAllCmd, ingestRetryCmd} {
		c.Flags().IntVar(&ingestMaxIssues, "max-issues", 0, "maximum issues to ingest (0 = configured default)")
		c.Flags().IntVar(&ingestMaxPRs, "max-prs", 0, "maximum merged pull requests to ingest (0 = configured default)")
		c.Flags().DurationVar(&ingestPRBudget, "pr-budget", 0, "wall-clock budget of the pull request scan (0 = configured default)")
	}
	ingestCmd.AddCommand(ingestStartCmd)
	ingestCmd.AddCommand(ingestStageCmd)
	ingestCmd.AddCommand(ingestAllCmd)
	ingestCmd.AddCommand(ingestRetryCmd)
	rootCmd.AddCommand(ingestCmd)
}

func ingestLimits() domain.Limits {
	return domain.Limits{
		MaxIssues:       ingestMaxIssues,
		MaxPRs:          ingestMaxPRs,
		WallClockBudget: ingestPRBudget,
	}
}

func runIngestStart(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}

	plan, err := ingestionService.StartIngestion(commandContext(cmd), repo)
	if err != nil {
		return withHint(err)
	}

	st := newStyles(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Repository " + plan.Repository.String()))
	cmd.Printf("  Default branch: %s\n", plan.DefaultBranch)
	cmd.Println()
	for _, sp := range plan.Stages {
		cmd.Printf("  %-14s %-12s %s\n", sp.Stage, st.Status(sp.Status), st.Muted.Render(plan.Collections[sp.Stage]))
	}
	if plan.NextStage != "" {
		cmd.Println()
		cmd.Printf("Next: repolens ingest stage %s %s\n", plan.Repository, plan.NextStage)
	}
	return nil
}

func runIngestStage(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}
	stage, err := domain.ParseStage(args[1])
	if err != nil {
		return err
	}

	cmd.Printf("Ingesting %s of %s...\n", stage, repo)
	result, err := ingestionService.IngestStage(commandContext(cmd), repo, stage, ingestLimits(), progressPrinter(cmd))
	if err != nil {
		return err
	}

	printStageResult(cmd, result)
	if !result.Succeeded() {
		return fmt.Errorf("stage %s did not complete", stage)
	}
	return nil
}

func runIngestAll(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}

	cmd.Printf("Ingesting all stages of %s...\n", repo)
	results, err := ingestionService.IngestAll(commandContext(cmd), repo, ingestLimits(), progressPrinter(cmd))
	return reportResults(cmd, results, err)
}

func runIngestRetry(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errNotConfigured
	}
	repo, err := domain.ParseRepositoryID(args[0])
	if err != nil {
		return err
	}

	results, err := ingestionService.RetryFailed(commandContext(cmd), repo, ingestLimits(), progressPrinter(cmd))
	if err == nil && len(results) == 0 {
		cmd.Println("No failed or stale stages to retry.")
		return nil
	}
	return reportResults(cmd, results, err)
}

// reportResults prints each stage result and fails if any stage failed.
func reportResults(cmd *cobra.Command, results []domain.StageResult, err error) error {
	for i := range results {
		printStageResult(cmd, &results[i])
	}
	if err != nil {
		return withHint(err)
	}

	var failed []string
	for i := range results {
		if !results[i].Succeeded() {
			failed = append(failed, results[i].Stage.String())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("stages did not complete: %s", strings.Join(failed, ", "))
	}
	return nil
}

func printStageResult(cmd *cobra.Command, r *domain.StageResult) {
	st := newStyles(cmd.OutOrStdout())

	cmd.Println()
	cmd.Printf("%s %s\n", st.Label.Render(fmt.Sprintf("Stage %s:", r.Stage)), st.Status(r.Status))
	cmd.Printf("  Documents:   %d processed, %d stored (%d new)\n", r.DocumentsProcessed, r.DocumentsStored, r.NewDocuments)
	cmd.Printf("  Chunks:      %d\n", r.ChunksStored)
	cmd.Printf("  Collection:  %s\n", r.Collection)
	if r.TerminationReason != domain.TerminationNone {
		stopped := r.TerminationReason.String()
		if r.Examined > 0 {
			stopped += fmt.Sprintf(" (%d examined)", r.Examined)
		}
		cmd.Printf("  Stopped:     %s\n", stopped)
	}
	cmd.Printf("  Elapsed:     %.1fs\n", r.ElapsedSeconds)
	for _, w := range r.Warnings {
		cmd.Printf("  %s %s\n", st.Warning.Render("Warning:"), w)
	}
	if r.Error != "" {
		cmd.Printf("  %s %s\n", st.Error.Render("Error:"), r.Error)
	}
	if r.Suggestion != "" {
		cmd.Printf("  %s %s\n", st.Muted.Render("Hint:"), r.Suggestion)
	}
}

// progressPrinter redraws a progress line on an interactive stderr and
// logs progress at debug level otherwise.
func progressPrinter(cmd *cobra.Command) driving.ProgressFunc {
	w := cmd.ErrOrStderr()
	if !isTerminal(w) {
		return func(ev driving.ProgressEvent) {
			logger.Debug("%s %s: %s %d/%d %s", ev.Repository, ev.Stage, ev.Phase, ev.Processed, ev.Total, ev.Message)
		}
	}

	var mu sync.Mutex
	return func(ev driving.ProgressEvent) {
		line := fmt.Sprintf("%s: %s %d", ev.Stage, ev.Phase, ev.Processed)
		if ev.Total > 0 {
			line += fmt.Sprintf("/%d", ev.Total)
		}
		if ev.Message != "" {
			line += " " + ev.Message
		}

		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "\r%-72s", truncate(line, 72))
		if ev.Phase == driving.PhaseStored {
			fmt.Fprintln(w)
		}
	}
}

// withHint appends the recovery hint of err, if any.
func withHint(err error) error {
	if hint := domain.Suggestion(err); hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, hint)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
