package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a running job",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	}
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	job, err := apiClient().CancelJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	fmt.Printf("Cancel requested for job %s (state: %s)\n", job.ID, job.State)
	fmt.Println("The job finishes its current relay, abandons unsettled files and winds down.")
	return nil
}
