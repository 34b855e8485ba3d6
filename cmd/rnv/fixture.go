package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/config"
	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/model"
)

func newFixtureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Work with fixture files",
	}
	cmd.AddCommand(newFixtureCheckCmd(a))
	return cmd
}

func newFixtureCheckCmd(a *app) *cobra.Command {
	var rootFlag string
	cmd := &cobra.Command{
		Use:   "check PATH",
		Short: "Report the shape of a fixture as seen from one root",
		Long: `check walks every link of the fixture from the root, ignoring expansion, and
reports links that converge on an already reached user and directs entries
that cannot be reached. Either problem makes the command fail.

The root is --root, or the id of --address when no root is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loader.LoadFixture(args[0])
			if err != nil {
				return err
			}
			root, err := fixtureRoot(f, rootFlag, a.v.GetString(config.KeyAddress))
			if err != nil {
				return err
			}
			report, err := loader.AnalyzeFixture(root, f)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), f, report)
			if !report.OK() {
				return fmt.Errorf("fixture %s is not a tree from %d", args[0], root)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rootFlag, "root", "", "root user id")
	return cmd
}

func fixtureRoot(f *loader.Fixture, rootFlag, address string) (model.NodeID, error) {
	if rootFlag != "" {
		return model.ParseNodeID(rootFlag)
	}
	if address == "" {
		return 0, errors.New("pass --root or --address")
	}
	rec, ok := f.User(address)
	if !ok || !rec.IsRegistered() {
		return 0, fmt.Errorf("address %s is not registered in the fixture", address)
	}
	return rec.ID, nil
}

func printReport(w io.Writer, f *loader.Fixture, r *loader.Report) {
	fmt.Fprintf(w, "root:        %d\n", r.Root)
	fmt.Fprintf(w, "users:       %d\n", len(f.Users))
	fmt.Fprintf(w, "reachable:   %d\n", len(r.Reachable))
	fmt.Fprintf(w, "depth:       %d\n", r.Depth)
	if f.Skipped > 0 {
		fmt.Fprintf(w, "skipped:     %d malformed lines\n", f.Skipped)
	}
	if len(r.Failing) > 0 {
		fmt.Fprintf(w, "failing:     %s\n", joinIDs(r.Failing))
	}
	if len(r.Dangling) > 0 {
		fmt.Fprintf(w, "leaves:      %d without a directs entry\n", len(r.Dangling))
	}
	for _, e := range r.Converging {
		fmt.Fprintf(w, "converging:  %d -> %d (%s), already reached\n", e.Parent, e.Child, e.Branch)
	}
	if len(r.Unreachable) > 0 {
		fmt.Fprintf(w, "unreachable: %s\n", joinIDs(r.Unreachable))
	}
	if r.OK() {
		fmt.Fprintln(w, "ok")
	}
}

func joinIDs(ids []model.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}
