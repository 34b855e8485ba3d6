package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/render"
)

type renderOpts struct {
	output    string
	format    string
	expandAll int
}

func newRenderCmd(a *app) *cobra.Command {
	var o renderOpts
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Write a snapshot of the tree to an svg, png or txt file",
		Example: `  rnv render --fixture tree.yaml -a 0xAb... -o tree.svg
  rnv render -a 0xAb... --expand-all 2 -o tree.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := a.config()
			if err != nil {
				return err
			}
			addr, err := a.address(cfg)
			if err != nil {
				return err
			}
			v, err := a.openViewer(ctx, cfg, 0)
			if err != nil {
				return err
			}
			defer v.Close()

			res, err := v.session.Load(ctx, addr)
			if err != nil {
				return err
			}
			for i := 0; i < o.expandAll; i++ {
				if res, err = v.session.ExpandAll(ctx); err != nil {
					return err
				}
			}

			title := "Referral network"
			if focus := v.session.Focus(); focus.IsRegistered() {
				title = fmt.Sprintf("Referral network of user %s", focus.ID)
			}
			if err := render.SaveSnapshot(render.SnapshotOptions{
				Path:    o.output,
				Format:  o.format,
				Mapping: res.Mapping,
				FocusID: res.FocusID,
				Title:   title,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d users to %s\n", len(res.Mapping), o.output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.output, "output", "o", "tree.svg", "snapshot file")
	cmd.Flags().StringVar(&o.format, "format", "", "svg, png or txt (default: from the file extension)")
	cmd.Flags().IntVar(&o.expandAll, "expand-all", 0, "expand all this many times before rendering")
	return cmd
}
