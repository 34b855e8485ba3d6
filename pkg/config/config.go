// Package config resolves viewer settings from defaults, a config file,
// REFNET_* environment variables and command-line flags, later sources
// winning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/export"
	"github.com/kraitsura/refnet/pkg/tree"
)

// EnvPrefix is prepended to every key to form its environment variable.
const EnvPrefix = "REFNET"

// DefaultConfigName is looked up in the home directory when no --config is given.
const DefaultConfigName = ".refnet"

// Keys.
const (
	KeyRPCURL      = "rpc_url"
	KeyContract    = "contract"
	KeyAddress     = "address"
	KeyFixture     = "fixture"
	KeyProfile     = "profile"
	KeyBudget      = "budget"
	KeyYieldEvery  = "yield_every"
	KeyYieldSleep  = "yield_sleep"
	KeyPrefetch    = "prefetch"
	KeyCallTimeout = "call_timeout"
	KeyJournal     = "journal"
	KeyListen      = "listen"
	KeyWatch       = "watch"
	KeyDebug       = "debug"
	KeyLogFile     = "log_file"
)

// Config is the resolved configuration.
type Config struct {
	RPCURL   string `mapstructure:"rpc_url"`
	Contract string `mapstructure:"contract"`
	Address  string `mapstructure:"address"`
	Fixture  string `mapstructure:"fixture"`

	Profile    string        `mapstructure:"profile"`
	Budget     int           `mapstructure:"budget"` // 0 means the profile's budget
	YieldEvery int           `mapstructure:"yield_every"`
	YieldSleep time.Duration `mapstructure:"yield_sleep"`
	Prefetch   int           `mapstructure:"prefetch"`

	CallTimeout time.Duration `mapstructure:"call_timeout"`
	Journal     string        `mapstructure:"journal"`
	Listen      int           `mapstructure:"listen"`
	Watch       bool          `mapstructure:"watch"`
	Debug       bool          `mapstructure:"debug"`
	LogFile     string        `mapstructure:"log_file"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// flagSpec ties a key to its command-line flag.
type flagSpec struct {
	key   string
	flag  string
	short string
	def   any
	usage string
}

var flagSpecs = []flagSpec{
	{KeyRPCURL, "rpc-url", "", "", "JSON-RPC endpoint of the chain"},
	{KeyContract, "contract", "", "", "referral contract address"},
	{KeyAddress, "address", "a", "", "focus user address (prompted for when empty)"},
	{KeyFixture, "fixture", "f", "", "read the tree from a .yaml or .jsonl fixture instead of the chain"},
	{KeyProfile, "profile", "", "auto", "layout profile: auto, wide or compact"},
	{KeyBudget, "budget", "b", 0, "max nodes per build (0 uses the profile budget)"},
	{KeyYieldEvery, "yield-every", "", tree.DefaultYieldEvery, "visited nodes between cooperative yields"},
	{KeyYieldSleep, "yield-sleep", "", time.Duration(0), "pause at each yield (0 disables)"},
	{KeyPrefetch, "prefetch", "", 1, "concurrent lookups per build step (1 is sequential)"},
	{KeyCallTimeout, "call-timeout", "", contract.DefaultCallTimeout, "timeout of one contract call"},
	{KeyJournal, "journal", "", "", "sqlite build journal path (empty disables)"},
	{KeyListen, "listen", "", export.DefaultViewerPort, "viewer server port (0 picks a free one)"},
	{KeyWatch, "watch", "w", false, "reload the fixture when it changes"},
	{KeyDebug, "debug", "d", false, "turn on debug logging"},
	{KeyLogFile, "log-file", "", "", "also write logs to this file"},
}

// RegisterFlags defines one flag per key on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range flagSpecs {
		switch def := s.def.(type) {
		case string:
			fs.StringP(s.flag, s.short, def, s.usage)
		case int:
			fs.IntP(s.flag, s.short, def, s.usage)
		case bool:
			fs.BoolP(s.flag, s.short, def, s.usage)
		case time.Duration:
			fs.DurationP(s.flag, s.short, def, s.usage)
		default:
			panic(fmt.Sprintf("config: unsupported default %T for %s", def, s.key))
		}
	}
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	for _, s := range flagSpecs {
		v.SetDefault(s.key, s.def)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags makes flags set on fs override every other source. Flags that
// were not defined on fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, s := range flagSpecs {
		f := fs.Lookup(s.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(s.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", s.flag, err)
		}
	}
	return nil
}

// ReadFile reads cfgFile, or $HOME/.refnet.* when cfgFile is empty. A missing
// default file is not an error; a missing explicit one is.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.File = v.ConfigFileUsed()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the viewer cannot start with.
func (c *Config) Validate() error {
	var problems []string

	switch {
	case c.Fixture == "" && c.RPCURL == "":
		problems = append(problems, "no tree source: set fixture or rpc_url")
	case c.Fixture != "" && c.RPCURL != "":
		problems = append(problems, "fixture and rpc_url are mutually exclusive")
	case c.RPCURL != "" && !common.IsHexAddress(c.Contract):
		problems = append(problems, fmt.Sprintf("contract %q is not a valid address", c.Contract))
	}
	if c.Address != "" && !common.IsHexAddress(c.Address) {
		problems = append(problems, fmt.Sprintf("address %q is not a valid address", c.Address))
	}
	if _, err := tree.ProfileByName(c.Profile, 0); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Budget < 0 {
		problems = append(problems, fmt.Sprintf("budget must be positive, got %d", c.Budget))
	}
	if c.YieldEvery < 0 || c.YieldSleep < 0 || c.Prefetch < 0 || c.CallTimeout < 0 {
		problems = append(problems, "yield_every, yield_sleep, prefetch and call_timeout must not be negative")
	}
	if c.Listen < 0 || c.Listen > 65535 {
		problems = append(problems, fmt.Sprintf("listen port %d out of range", c.Listen))
	}
	if c.Watch && c.Fixture == "" {
		problems = append(problems, "watch needs a fixture")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BuildOptions turns the traversal settings into tree options for an output
// cols columns wide (0 if unknown).
func (c *Config) BuildOptions(cols int) (tree.BuildOptions, tree.Profile, error) {
	profile, err := tree.ProfileByName(c.Profile, cols)
	if err != nil {
		return tree.BuildOptions{}, tree.Profile{}, err
	}
	opts := tree.BuildOptions{
		Budget:     profile.Budget,
		Layout:     profile.Layout,
		YieldEvery: c.YieldEvery,
		Prefetch:   c.Prefetch,
	}
	if c.Budget > 0 {
		opts.Budget = c.Budget
	}
	if c.YieldSleep > 0 {
		opts.Yield = tree.SleepYield(c.YieldSleep)
	}
	return opts, profile, nil
}
