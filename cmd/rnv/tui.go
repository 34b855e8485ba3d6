package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/logging"
	"github.com/kraitsura/refnet/pkg/tree"
	"github.com/kraitsura/refnet/pkg/ui"
	"github.com/kraitsura/refnet/pkg/watcher"
)

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse the tree interactively (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd.Context())
		},
	}
}

func (a *app) runTUI(ctx context.Context) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	addr, err := a.address(cfg)
	if err != nil {
		return err
	}

	v, err := a.openViewer(ctx, cfg, terminalWidth())
	if err != nil {
		return err
	}
	defer v.Close()

	// the program owns the terminal from here on
	if err := logging.Init(a.logOptions(true)); err != nil {
		return err
	}
	defer logging.Init(a.logOptions(false))

	m := ui.New(v.session,
		ui.WithContext(ctx),
		ui.WithAddress(addr),
		ui.WithProfileName(v.profile.Name),
	)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if cfg.Watch && v.src.fixture != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		reloader := &watcher.FixtureReloader{
			Client:  v.src.fixture,
			Session: v.session,
			Logger:  a.log,
			OnReload: func(res *tree.Result, err error) {
				p.Send(ui.ReloadedMsg{Result: res, Err: err})
			},
		}
		go func() {
			if err := reloader.Watch(watchCtx, cfg.Fixture, watcher.Options{Logger: a.log}); err != nil {
				a.log.WithError(err).Warn("fixture watcher stopped")
			}
		}()
	}

	_, err = p.Run()
	if focus := v.session.Focus(); focus.IsRegistered() {
		a.remember(focus.Address)
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
