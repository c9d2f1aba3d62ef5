package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/config"
)

// newStatusCmd builds the `status` command: prints the contents of the
// `state` file (spec.md §6), the single most-recent-run summary written by
// `sync`.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the most recent sync status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	data, err := os.ReadFile(config.StatePath(cc.StateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No sync has run yet.")
			return nil
		}

		return fmt.Errorf("status: reading state file: %w", err)
	}

	fmt.Print(string(data))

	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Println()
	}

	return nil
}
