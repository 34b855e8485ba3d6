package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/kraitsura/refnet/pkg/config"
	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/journal"
	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/logging"
	"github.com/kraitsura/refnet/pkg/tree"
	"github.com/kraitsura/refnet/pkg/ui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const longDescription = `rnv shows the binary referral network below a wallet address.

The tree is read from the referral contract over JSON-RPC (--rpc-url and
--contract) or from a YAML/JSONL fixture (--fixture). Settings may also come
from $HOME/.refnet.yaml and REFNET_* environment variables.`

// app holds what the subcommands share once flags are parsed.
type app struct {
	v       *viper.Viper
	cfgFile string
	log     *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), log: logrus.StandardLogger()}

	root := &cobra.Command{
		Use:           "rnv",
		Short:         "Browse a binary referral network",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTUI(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.refnet.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newTUICmd(a),
		newRenderCmd(a),
		newServeCmd(a),
		newFixtureCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

// init reads the config file, binds flags and sets up console logging.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	return logging.Init(a.logOptions(false))
}

func (a *app) logOptions(quiet bool) logging.Options {
	return logging.Options{
		Debug:        a.v.GetBool(config.KeyDebug),
		DisableColor: !term.IsTerminal(int(os.Stderr.Fd())),
		LogFile:      a.v.GetString(config.KeyLogFile),
		Quiet:        quiet,
	}
}

// config decodes and validates the merged settings.
func (a *app) config() (*config.Config, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		a.log.WithField("file", cfg.File).Debug("using config file")
	}
	return cfg, nil
}

// source is an opened tree source. fixture is set only for fixture sources.
type source struct {
	client  tree.Client
	fixture *contract.FixtureClient
	close   func()
}

func (s *source) Close() {
	if s.close != nil {
		s.close()
	}
}

func (a *app) openSource(ctx context.Context, cfg *config.Config) (*source, error) {
	if cfg.Fixture != "" {
		f, err := loader.LoadFixture(cfg.Fixture)
		if err != nil {
			return nil, err
		}
		if f.Skipped > 0 {
			a.log.WithField("lines", f.Skipped).Warn("skipped malformed fixture lines")
		}
		fc := contract.NewFixtureClient(f)
		return &source{client: fc, fixture: fc}, nil
	}

	c, err := contract.Dial(ctx, cfg.RPCURL, cfg.Contract, contract.EthClientOptions{
		CallTimeout: cfg.CallTimeout,
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{"rpc": cfg.RPCURL, "contract": c.Address().Hex()}).Debug("connected")
	return &source{client: c, close: c.Close}, nil
}

// viewer is a session over an opened source, journaled when a journal path
// is set.
type viewer struct {
	session *tree.Session
	profile tree.Profile
	src     *source
	rec     *journal.Recorder
	log     logrus.FieldLogger
}

// Close completes the journal session and releases the source.
func (v *viewer) Close() {
	if v.rec != nil {
		if err := v.rec.Close(); err != nil {
			v.log.WithError(err).Warn("close build journal")
		}
	}
	v.src.Close()
}

func (a *app) openViewer(ctx context.Context, cfg *config.Config, cols int) (*viewer, error) {
	opts, profile, err := cfg.BuildOptions(cols)
	if err != nil {
		return nil, err
	}
	opts.Logger = a.log

	src, err := a.openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sessionOpts := []tree.SessionOption{tree.WithBuildOptions(opts), tree.WithLogger(a.log)}
	rec := journal.TryOpen(cfg.Journal, a.log)
	if rec != nil {
		sessionOpts = append(sessionOpts, tree.WithBuildHook(rec.Hook()))
	}
	session := tree.NewSession(src.client, sessionOpts...)
	if rec != nil {
		rec.Track(session.Focus)
	}

	a.log.WithFields(logrus.Fields{"profile": profile.Name, "budget": opts.Budget}).Debug("session ready")
	return &viewer{session: session, profile: profile, src: src, rec: rec, log: a.log}, nil
}

// address returns the configured focus address, asking for one when stdin
// is a terminal.
func (a *app) address(cfg *config.Config) (string, error) {
	if cfg.Address != "" {
		return cfg.Address, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no address given: pass --address or set REFNET_ADDRESS")
	}
	recent, err := ui.OpenRecent(ui.RecentPath())
	if err != nil {
		a.log.WithError(err).Debug("ignoring unreadable recent address list")
	}
	return promptAddress(recent.List())
}

// otherAddress is the select option that falls through to free input.
const otherAddress = "other"

func promptAddress(recent []ui.RecentAddress) (string, error) {
	var addr string
	if len(recent) > 0 {
		options := make([]huh.Option[string], 0, len(recent)+1)
		for _, r := range recent {
			label := fmt.Sprintf("%s  (%s)", r.Address, humanize.Time(r.LastUsed))
			options = append(options, huh.NewOption(label, r.Address))
		}
		options = append(options, huh.NewOption("another address...", otherAddress))
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Whose referral network should be shown?").
				Options(options...).
				Value(&addr),
		)).Run()
		if err != nil {
			return "", fmt.Errorf("address prompt: %w", err)
		}
		if addr != otherAddress {
			return addr, nil
		}
		addr = ""
	}

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Wallet address").
			Description("Whose referral network should be shown?").
			Placeholder("0x...").
			Value(&addr).
			Validate(func(s string) error {
				if !common.IsHexAddress(strings.TrimSpace(s)) {
					return errors.New("not a 20-byte hex address")
				}
				return nil
			}),
	)).Run()
	if err != nil {
		return "", fmt.Errorf("address prompt: %w", err)
	}
	return strings.TrimSpace(addr), nil
}

// remember adds a loaded focus address to the recent list.
func (a *app) remember(address string) {
	recent, _ := ui.OpenRecent(ui.RecentPath())
	recent.Add(address)
	if err := recent.Save(); err != nil {
		a.log.WithError(err).Debug("could not save recent addresses")
	}
}

// terminalWidth returns the width of stdout, or 0 when it is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return w
}
