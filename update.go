package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newUpdateCmd builds the `update` command. spec.md §6 lists it among the
// single-shot lifecycle commands but explicitly scopes its behaviour out of
// this spec beyond "it exists and runs as root" — self-update mechanics
// (fetching and replacing the binary) are not part of the reconciliation
// engine this repository implements.
func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "update",
		Short:       "Update this agent to the latest release (not yet implemented)",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(*cobra.Command, []string) error {
			fmt.Println("update: not yet implemented")
			return nil
		},
	}
}
