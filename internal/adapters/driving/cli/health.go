package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthJSON bool

// errUnhealthy gives 'repolens health' a non-zero exit status.
var errUnhealthy = errors.New("repolens is not ready to ingest")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the embedding provider, GitHub quota and stored progress",
	Long: `Check everything a stage run depends on: whether the embedding provider
answers, how much of the GitHub API quota is left, where the database lives
and whether any stage was left in progress by a process that died.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	if healthService == nil {
		return errors.New("health service not configured")
	}

	report, err := healthService.Check(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if healthJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		st := newStyles(cmd.OutOrStdout())
		ok := func(b bool) string {
			if b {
				return st.Success.Render("ok")
			}
			return st.Error.Render("failing")
		}

		cmd.Println(st.Title.Render("Health"))
		cmd.Printf("  Embedding: %s (%s %s)\n", ok(report.Embedding.Reachable), report.Embedding.Provider, report.Embedding.Model)
		if report.Embedding.Error != "" {
			cmd.Printf("             %s\n", st.Error.Render(report.Embedding.Error))
		}
		if q := report.GitHubQuota; q != nil {
			line := fmt.Sprintf("  GitHub:    %d/%d calls left", q.Remaining, q.Limit)
			if !q.Reset.IsZero() {
				line += st.Muted.Render(", resets " + q.Reset.Local().Format(time.TimeOnly))
			}
			cmd.Println(line)
		}
		if report.DatabasePath != "" {
			cmd.Printf("  Database:  %s\n", report.DatabasePath)
		}
		if len(report.StuckStages) == 0 {
			cmd.Printf("  Stages:    %s\n", st.Success.Render("none stuck"))
		}
		for _, s := range report.StuckStages {
			cmd.Printf("  Stuck:     %s %s %s\n", s.Repository, s.Stage,
				st.Warning.Render("no heartbeat since "+s.LastHeartbeat.Local().Format(time.DateTime)))
			cmd.Printf("             rerun with 'repolens ingest stage %s %s'\n", s.Repository, s.Stage)
		}
	}

	if !report.Healthy {
		return errUnhealthy
	}
	return nil
}
