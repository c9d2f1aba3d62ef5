package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/store"
)

// newUninstallCmd builds the `uninstall` command, grounded directly on
// original_source/mam.py's action_uninstall: remove the installed binary,
// rmdir every directory in the created-dirs ledger deepest first (leaving
// any that are not empty), and remove the entire state directory tree.
func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "uninstall",
		Short:       "Remove the installed binary and state directory",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runUninstall,
	}
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	stateDir := resolveStateDir(cmd)

	if err := os.Remove(installedPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("uninstall: removing %s: %w", installedPath, err)
	}

	dirs, err := store.New(stateDir).CreatedDirsDeepestFirst()
	if err != nil {
		return fmt.Errorf("uninstall: reading created-dirs ledger: %w", err)
	}

	for _, dir := range dirs {
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTEMPTY) {
			return fmt.Errorf("uninstall: removing created dir %s: %w", dir, err)
		}
	}

	if err := os.RemoveAll(stateDir); err != nil {
		return fmt.Errorf("uninstall: removing %s: %w", stateDir, err)
	}

	fmt.Println("Uninstalled.")

	return nil
}
