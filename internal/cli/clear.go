package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove finished job records and stale download folders",
		RunE:  runClear,
	}
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := apiClient().Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear: %w", err)
	}

	fmt.Printf("Removed %d stale download folder(s)\n", result.Removed)
	return nil
}
