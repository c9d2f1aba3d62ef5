package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/kindreg"
)

// newRemoveCmd builds the `remove <kind> <path-or-name>` command
// (spec.md §6, §4.6).
func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <kind> <path-or-name>",
		Short: "Stop managing a file, directory, package, partial, or additional",
		Args:  cobra.ExactArgs(2),
		RunE:  runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	kind := kindreg.Kind(args[0])
	if !kind.Valid() {
		return fmt.Errorf("remove: unrecognized kind %q (want one of file, directory, package, partial, additional)", args[0])
	}

	m, ok := cc.Registry.Get(kind)
	if !ok {
		return fmt.Errorf("remove: no materialiser registered for %s", kind)
	}

	key := args[1]

	if claimedKind, claimed := cc.Admin.ClaimedKind(key); !claimed || claimedKind != kind {
		return fmt.Errorf("remove: %s is not tracked as a %s", key, kind)
	}

	if err := cc.Admin.Remove(cmd.Context(), kind, key, m); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	fmt.Printf("Stopped managing %s %s\n", kind, key)

	return nil
}
