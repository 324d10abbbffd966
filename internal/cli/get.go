package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get a job by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	detail, err := apiClient().GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fmt.Printf("Id: %s\n", detail.ID)
	fmt.Printf("Source: %s\n", detail.SourceURL)
	fmt.Printf("State: %s\n", detail.State)
	if detail.FailureCause != "" {
		fmt.Printf("Failure: %s\n", detail.FailureCause)
	}
	fmt.Printf("User: %d\n", detail.UserID)
	fmt.Printf("Chat: %d\n", detail.ChatID)
	fmt.Printf("WorkDir: %s\n", detail.WorkDir)
	fmt.Printf("Started At: %s\n", formatTimestamp(detail.StartedAt))
	if detail.EndedAt != nil {
		fmt.Printf("Ended At: %s\n", formatTimestamp(*detail.EndedAt))
	}
	fmt.Printf("Duration: %s\n", detail.Duration)
	fmt.Printf("Files: %s\n", fileSummary(detail.Files))

	if p := detail.Progress; p != nil {
		fmt.Printf("Progress: %s", p.Phase)
		if p.Label != "" {
			fmt.Printf(" %s", p.Label)
		}
		if p.BytesTotal > 0 {
			fmt.Printf(" %s / %s", humanize.IBytes(uint64(p.BytesDone)), humanize.IBytes(uint64(p.BytesTotal)))
		} else if p.BytesDone > 0 {
			fmt.Printf(" %s", humanize.IBytes(uint64(p.BytesDone)))
		}
		if p.Rate > 0 {
			fmt.Printf(" @ %s/s", humanize.IBytes(uint64(p.Rate)))
		}
		fmt.Println()
	}

	return nil
}
