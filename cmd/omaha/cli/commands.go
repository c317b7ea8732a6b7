package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/chromedocs/omaha/cmd/omaha/cli/branch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
)

var errVersionNeedsStable = errors.New("a version can only be given for the stable channel")

// versionBranch is the output of the branch command.
type versionBranch struct {
	Version channel.Number `json:"version" yaml:"version"`
	Branch  channel.Number `json:"branch" yaml:"branch"`
}

// versionChannel is the output of the which command. Channel is empty when
// no channel carries the version.
type versionChannel struct {
	Version channel.Number  `json:"version" yaml:"version"`
	Channel channel.Channel `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// latestVersion is the output of the latest command.
type latestVersion struct {
	Version channel.Number `json:"version" yaml:"version"`
}

// pathSplit is the output of the split command.
type pathSplit struct {
	Channel channel.Channel `json:"channel,omitempty" yaml:"channel,omitempty"`
	Path    string          `json:"path" yaml:"path"`
}

var infoHeader = table.Row{"CHANNEL", "BRANCH", "VERSION"}

func infoRow(info channel.Info) table.Row {
	return table.Row{info.Channel, info.Branch, info.Version}
}

func infosView(infos []channel.Info) view {
	rows := make([]table.Row, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, infoRow(info))
	}
	return view{value: infos, header: infoHeader, rows: rows}
}

func infoView(info channel.Info) view {
	return view{value: info, header: infoHeader, rows: []table.Row{infoRow(info)}}
}

// optionalInfoView renders a missing neighbor as null or "none".
func optionalInfoView(info *channel.Info) view {
	if info == nil {
		return view{value: nil, header: infoHeader, rows: []table.Row{{"none", "", ""}}}
	}
	return infoView(*info)
}

func parseVersionArg(arg string) (channel.Number, error) {
	v, err := channel.ParseNumber(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %w", err)
	}
	return v, nil
}

func newChannelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Show the branch and version of every channel",
		Long:  "Show the branch and version of every channel, oldest first: stable, beta, dev, trunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				infos, err := r.GetAllChannelInfo(ctx)
				if err != nil {
					return err
				}
				return a.write(cmd, infosView(infos))
			})
		},
	}
}

func newChannelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "channel [stable|beta|dev|trunk]",
		Short:     "Show the branch and version of one channel",
		Long:      "Show the branch and version of one channel. Without an argument, a terminal prompts for the channel.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"stable", "beta", "dev", "trunk"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(cmd, args, "Select a channel")
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				info, err := r.GetChannelInfo(ctx, ch)
				if err != nil {
					return err
				}
				return a.write(cmd, infoView(info))
			})
		},
	}
}

func newStableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stable <version>",
		Short: "Show the stable release of a past version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				info, err := r.GetStableChannelInfo(ctx, version)
				if err != nil {
					return err
				}
				return a.write(cmd, infoView(info))
			})
		},
	}
}

func newBranchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branch <version>",
		Short: "Show the branch a major version was cut from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				b, err := r.GetBranchForVersion(ctx, version)
				if errors.Is(err, branch.ErrNotFound) {
					fmt.Fprintf(cmd.ErrOrStderr(), "Version %s is not in the release history.\n", version)
					return NewSilentError(err)
				}
				if err != nil {
					return err
				}
				return a.write(cmd, view{
					value:  versionBranch{Version: version, Branch: b},
					header: table.Row{"VERSION", "BRANCH"},
					rows:   []table.Row{{version, b}},
				})
			})
		},
	}
}

func newLatestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the highest major version in the release history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				v, err := r.GetLatestVersionNumber(ctx)
				if err != nil {
					return err
				}
				return a.write(cmd, view{
					value:  latestVersion{Version: v},
					header: table.Row{"VERSION"},
					rows:   []table.Row{{v}},
				})
			})
		},
	}
}

func newWhichCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "which <version>",
		Short: "Show which channel a major version belongs to",
		Long:  "Show which channel a major version belongs to. Every version up to the current stable counts as stable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				ch, _, err := r.GetChannelForVersion(ctx, version)
				if err != nil {
					return err
				}
				return a.write(cmd, view{
					value:  versionChannel{Version: version, Channel: ch},
					header: table.Row{"VERSION", "CHANNEL"},
					rows:   []table.Row{{version, orNone(ch.String())}},
				})
			})
		},
	}
}

func newNewerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "newer [channel] [version]",
		Short: "Show the next newer release",
		Long:  "Show the next newer release. A version can be given for the stable channel to start from a past stable release. Without arguments, a terminal prompts for the channel.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(cmd, args, "Select a channel to step forward from")
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				start, err := startInfo(ctx, r, ch, args)
				if err != nil {
					return err
				}
				next, err := r.Newer(ctx, start)
				if err != nil {
					return err
				}
				return a.write(cmd, optionalInfoView(next))
			})
		},
	}
}

func newOlderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "older [channel] [version]",
		Short: "Show the next older release",
		Long:  "Show the next older release. A version can be given for the stable channel to start from a past stable release. Without arguments, a terminal prompts for the channel.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := channelArg(cmd, args, "Select a channel to step back from")
			if err != nil {
				return err
			}
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				start, err := startInfo(ctx, r, ch, args)
				if err != nil {
					return err
				}
				prev, err := r.Older(ctx, start)
				if err != nil {
					return err
				}
				return a.write(cmd, optionalInfoView(prev))
			})
		},
	}
}

// startInfo resolves the starting release of newer and older. args[1], when
// present, is a past stable version.
func startInfo(ctx context.Context, r *branch.Resolver, ch channel.Channel, args []string) (channel.Info, error) {
	if len(args) < 2 {
		return r.GetChannelInfo(ctx, ch)
	}
	if ch != channel.Stable {
		return channel.Info{}, errVersionNeedsStable
	}
	version, err := parseVersionArg(args[1])
	if err != nil {
		return channel.Info{}, err
	}
	return r.GetStableChannelInfo(ctx, version)
}

func newSplitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "split <path>",
		Short: "Split a leading channel name off a path",
		Long:  "Split a leading channel name off a path such as beta/static/css/main.css. No feeds are fetched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, rest, ok := channel.SplitChannelNameFromPath(args[0])
			if !ok {
				rest = args[0]
			}
			return a.write(cmd, view{
				value:  pathSplit{Channel: ch, Path: rest},
				header: table.Row{"CHANNEL", "PATH"},
				rows:   []table.Row{{orNone(ch.String()), rest}},
			})
		},
	}
}

func newWarmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Resolve every channel and the latest version into the cache",
		Long:  "Resolve every channel and the latest version into the cache. Most useful with the file or sqlite cache.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withResolver(cmd, func(ctx context.Context, r *branch.Resolver) error {
				if err := r.Warm(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cache warmed (%s)\n", a.settings.CacheBackend)
				return nil
			})
		},
	}
}
