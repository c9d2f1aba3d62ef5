package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetbase/agent/internal/kindreg"
	"github.com/fleetbase/agent/internal/transport"
)

// newAddCmd builds the `add <kind> <path-or-name> [extras]` command tree
// (spec.md §6, §4.6).
func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Start managing a file, directory, package, partial, or additional",
	}

	cmd.AddCommand(newAddFileCmd())
	cmd.AddCommand(newAddDirectoryCmd())
	cmd.AddCommand(newAddPackageCmd())
	cmd.AddCommand(newAddPartialCmd())
	cmd.AddCommand(newAddAdditionalCmd())

	return cmd
}

func newAddFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Start managing a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			m, ok := cc.Registry.Get(kindreg.File)
			if !ok {
				return fmt.Errorf("add file: no materialiser registered for file")
			}

			if err := cc.Admin.AddFile(cmd.Context(), args[0], m); err != nil {
				return fmt.Errorf("add file: %w", err)
			}

			fmt.Printf("Now managing file %s\n", args[0])

			return nil
		},
	}
}

func newAddDirectoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "directory <path>",
		Short: "Start managing a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			m, ok := cc.Registry.Get(kindreg.Directory)
			if !ok {
				return fmt.Errorf("add directory: no materialiser registered for directory")
			}

			if err := cc.Admin.AddDirectory(cmd.Context(), args[0], m); err != nil {
				return fmt.Errorf("add directory: %w", err)
			}

			fmt.Printf("Now managing directory %s\n", args[0])

			return nil
		},
	}
}

func newAddPackageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "package <name>",
		Short: "Start managing an installed package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			m, ok := cc.Registry.Get(kindreg.Package)
			if !ok {
				return fmt.Errorf("add package: no materialiser registered for package")
			}

			if err := cc.Admin.AddPackage(cmd.Context(), args[0], m); err != nil {
				return fmt.Errorf("add package: %w", err)
			}

			fmt.Printf("Now managing package %s\n", args[0])

			return nil
		},
	}
}

func newAddPartialCmd() *cobra.Command {
	var section string

	cmd := &cobra.Command{
		Use:   "partial <path> <pattern> <value>",
		Short: "Start managing one regex-matched line inside a file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			m, ok := cc.Registry.Get(kindreg.Partial)
			if !ok {
				return fmt.Errorf("add partial: no materialiser registered for partial")
			}

			rule := transport.EditRule{Pattern: args[1], Value: args[2]}
			if section != "" {
				rule.Section = &section
			}

			if err := cc.Admin.AddPartial(cmd.Context(), args[0], rule, m); err != nil {
				return fmt.Errorf("add partial: %w", err)
			}

			fmt.Printf("Now managing partial rule %q in %s\n", args[1], args[0])

			return nil
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "regex restricting the rule to lines under a matching section header")

	return cmd
}

func newAddAdditionalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "additional <path> <comment-prefix>",
		Short: "Start managing a fenced block of appended lines inside a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			m, ok := cc.Registry.Get(kindreg.Additional)
			if !ok {
				return fmt.Errorf("add additional: no materialiser registered for additional")
			}

			if err := cc.Admin.AddAdditional(cmd.Context(), args[0], args[1], m); err != nil {
				return fmt.Errorf("add additional: %w", err)
			}

			fmt.Printf("Now managing additional block in %s\n", args[0])

			return nil
		},
	}
}
