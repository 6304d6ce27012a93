// File: cmd/apps.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/droidpilot/internal/apps"
)

func newAppsCmd() *cobra.Command {
	appsCmd := &cobra.Command{
		Use:   "apps",
		Short: "Inspects and edits the app name to package registry",
	}

	appsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lists every registered app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := apps.LoadFile(cfg.Apps.File)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPACKAGE")
			for _, e := range registry.All() {
				fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Package)
			}
			return w.Flush()
		},
	})

	appsCmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Prints the package id registered for NAME",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := apps.LoadFile(cfg.Apps.File)
			if err != nil {
				return err
			}
			pkg, ok := registry.Lookup(args[0])
			if !ok {
				return fmt.Errorf("app %q is not registered", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), pkg)
			return nil
		},
	})

	appsCmd.AddCommand(&cobra.Command{
		Use:   "set NAME PACKAGE",
		Short: "Registers or replaces the package id for NAME",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := apps.LoadFile(cfg.Apps.File)
			if err != nil {
				return err
			}
			if err := registry.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := apps.SaveFile(cfg.Apps.File, registry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	})

	return appsCmd
}
