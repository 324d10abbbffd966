package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relaybot/pkg/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List all jobs",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	jobs, err := apiClient().ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Print(formatJobTable(jobs))
	return nil
}

func formatJobTable(jobs []client.Job) string {
	maxIDWidth := len("ID")
	maxStateWidth := len("STATE")

	for _, job := range jobs {
		if len(job.ID) > maxIDWidth {
			maxIDWidth = len(job.ID)
		}
		if len(job.State) > maxStateWidth {
			maxStateWidth = len(job.State)
		}
	}

	maxIDWidth += 2
	maxStateWidth += 2

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %-*s %-19s %-22s %s\n",
		maxIDWidth, "ID",
		maxStateWidth, "STATE",
		"STARTED",
		"FILES",
		"SOURCE")
	fmt.Fprintf(&b, "%s %s %s %s %s\n",
		strings.Repeat("-", maxIDWidth),
		strings.Repeat("-", maxStateWidth),
		strings.Repeat("-", 19),
		strings.Repeat("-", 22),
		strings.Repeat("-", 6))

	for _, job := range jobs {
		fmt.Fprintf(&b, "%-*s %-*s %-19s %-22s %s\n",
			maxIDWidth, job.ID,
			maxStateWidth, job.State,
			formatTimestamp(job.StartedAt),
			fileSummary(job.Files),
			truncate(job.SourceURL, 60))
	}

	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
