package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/updater"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		// no config or logging needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rnv version %s\n", version)
			if !check {
				return nil
			}
			rel, err := updater.NewChecker().CheckForUpdates(cmd.Context(), version)
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if rel != nil {
				fmt.Fprintf(out, "a newer release is available: %s (%s)\n", rel.TagName, rel.HTMLURL)
			} else {
				fmt.Fprintln(out, "up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
