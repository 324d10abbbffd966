package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon liveness",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	health, err := apiClient().Health(ctx)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Active jobs: %d\n", health.ActiveJobs)
	return nil
}
