package main

import (
	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/export"
)

func newServeCmd(a *app) *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree as an interactive web page",
		Long: `serve starts a local web viewer on --listen. The page shows the tree as
SVG and offers the same toggle, expand all, collapse all and refresh actions
as the terminal viewer. JSON, SVG and PNG renditions live under /api.`,
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

			if _, err := v.session.Load(ctx, addr); err != nil {
				return err
			}
			return export.Serve(ctx, v.session, export.ServerConfig{
				Port:        cfg.Listen,
				OpenBrowser: open,
				Logger:      a.log,
			})
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "open the page in a browser")
	return cmd
}
