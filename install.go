package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// installedPath is where `install` copies the running binary, matching
// original_source/mam.py's action_install destination.
const installedPath = "/usr/local/bin/fleetbase-agent"

// installedMode mirrors action_install's os.chmod(..., 0o755).
const installedMode = 0o755

// newInstallCmd builds the `install` command, grounded directly on
// original_source/mam.py's action_install: copy the running binary into a
// well-known path and prompt the operator to run `auth` next.
func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "install",
		Short:       "Install this binary to " + installedPath,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runInstall,
	}
}

func runInstall(_ *cobra.Command, _ []string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("install: locating running binary: %w", err)
	}

	data, err := os.ReadFile(self)
	if err != nil {
		return fmt.Errorf("install: reading running binary: %w", err)
	}

	if err := os.WriteFile(installedPath, data, installedMode); err != nil {
		return fmt.Errorf("install: writing %s: %w", installedPath, err)
	}

	if err := os.Chmod(installedPath, installedMode); err != nil {
		return fmt.Errorf("install: setting permissions on %s: %w", installedPath, err)
	}

	fmt.Printf("Installed to %s. Please run `fleetbase-agent auth` next.\n", installedPath)

	return nil
}
