package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chromedocs/omaha/cmd/omaha/cli/branch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/fetch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/logging"
	"github.com/chromedocs/omaha/cmd/omaha/cli/settings"
	"github.com/chromedocs/omaha/cmd/omaha/cli/store"
	"github.com/chromedocs/omaha/cmd/omaha/cli/telemetry"
)

const configHelp = `

Configuration:
  Settings are read from ~/.config/omaha/settings.json and
  settings.local.json, then from OMAHA_* environment variables.
  Flags override both. Set OMAHA_HOME to relocate ~/.config and ~/.cache.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

// rootOptions holds the persistent flags. Only flags the user set override
// settings.
type rootOptions struct {
	format       string
	cacheBackend string
	cachePath    string
	cacheTTL     time.Duration
	currentURL   string
	historyURL   string
	timeout      time.Duration
}

// app carries state from the root pre-run into subcommands.
type app struct {
	opts     rootOptions
	format   string
	settings *settings.OmahaSettings
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "omaha",
		Short: "Chrome channel and branch lookup",
		Long:  "Resolve Chrome release channels to branch and version numbers using the OmahaProxy feeds" + configHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		SilenceUsage:  true,
		// Hide completion command from help but keep it functional
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.settings == nil {
				return
			}
			telemetryClient := telemetry.NewClient(Version, a.settings.TelemetryEnabled())
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd, a.settings.CacheBackend)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.opts.format, "format", "", "Output format: table, json or yaml (default table on a terminal, json otherwise)")
	flags.StringVar(&a.opts.cacheBackend, "cache", "", "Cache backend: memory, file or sqlite")
	flags.StringVar(&a.opts.cachePath, "cache-path", "", "Cache directory (file) or database (sqlite)")
	flags.DurationVar(&a.opts.cacheTTL, "cache-ttl", 0, "How long cached channel values are served before the feeds are read again; 0 keeps them forever (default 1h)")
	flags.StringVar(&a.opts.currentURL, "current-url", "", "Current versions feed URL")
	flags.StringVar(&a.opts.historyURL, "history-url", "", "Release history feed URL")
	flags.DurationVar(&a.opts.timeout, "timeout", 0, "Timeout for each feed request")

	cmd.AddCommand(newChannelsCmd(a))
	cmd.AddCommand(newChannelCmd(a))
	cmd.AddCommand(newStableCmd(a))
	cmd.AddCommand(newBranchCmd(a))
	cmd.AddCommand(newLatestCmd(a))
	cmd.AddCommand(newWhichCmd(a))
	cmd.AddCommand(newNewerCmd(a))
	cmd.AddCommand(newOlderCmd(a))
	cmd.AddCommand(newSplitCmd(a))
	cmd.AddCommand(newWarmCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads settings, applies flag overrides, picks the output format and
// starts logging.
func (a *app) setup(cmd *cobra.Command) error {
	s, err := settings.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	a.applyFlags(cmd.Flags(), s)

	format, err := resolveFormat(cmd.OutOrStdout(), a.opts.format)
	if err != nil {
		return err
	}
	a.format = format

	logging.SetLogLevelGetter(func() string { return s.LogLevel })
	if err := logging.Init(s.LogPath()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to initialize logging: %v\n", err)
	}

	a.settings = s
	return nil
}

func (a *app) applyFlags(flags *pflag.FlagSet, s *settings.OmahaSettings) {
	if flags.Changed("cache") {
		s.CacheBackend = a.opts.cacheBackend
	}
	if flags.Changed("cache-path") {
		s.CachePath = a.opts.cachePath
	}
	if flags.Changed("cache-ttl") {
		s.CacheTTL = settings.Duration(a.opts.cacheTTL)
	}
	if flags.Changed("current-url") {
		s.CurrentVersionsURL = a.opts.currentURL
	}
	if flags.Changed("history-url") {
		s.HistoryURL = a.opts.historyURL
	}
	if flags.Changed("timeout") && a.opts.timeout > 0 {
		s.FetchTimeout = settings.Duration(a.opts.timeout)
	}
}

// withResolver builds a resolver over the configured cache and runs fn. Feed
// fetches still running when fn returns are canceled and waited for, so
// nothing logs after the command ends.
func (a *app) withResolver(cmd *cobra.Command, fn func(ctx context.Context, r *branch.Resolver) error) error {
	ctx := logging.WithCommand(cmd.Context(), cmd.Name())

	opts, err := a.settings.StoreOptions()
	if err != nil {
		return err
	}
	creator, closeStore, err := store.NewCreator(opts)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logging.Warn(ctx, "failed to close cache", slog.String("error", cerr.Error()))
		}
	}()

	r, err := branch.New(ctx, a.settings.CurrentVersionsURL, a.settings.HistoryURL,
		fetch.NewHTTPFetcher(a.settings.Timeout()), creator,
		branch.WithMaxAge(a.settings.MaxAge()))
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(ctx, r)
}

// write renders v in the selected output format.
func (a *app) write(cmd *cobra.Command, v view) error {
	return writeView(cmd.OutOrStdout(), a.format, v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "omaha %s (%s)\n", Version, Commit)
			fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
