package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
)

var errChannelRequired = errors.New("a channel is required: stable, beta, dev or trunk")

// selectChannel asks the user to pick a channel. Tests replace it.
var selectChannel = runChannelForm

// canPrompt reports whether both ends of cmd are a terminal.
var canPrompt = func(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	return ok && isTerminal(in) && isTerminal(cmd.OutOrStdout())
}

// channelArg returns args[0] as a channel, or prompts for one when args is
// empty and the command runs on a terminal.
func channelArg(cmd *cobra.Command, args []string, title string) (channel.Channel, error) {
	if len(args) > 0 {
		return channel.Parse(args[0])
	}
	if !canPrompt(cmd) {
		return "", errChannelRequired
	}
	return selectChannel(cmd, title)
}

func channelOptions() []huh.Option[channel.Channel] {
	names := channel.AllNames()
	options := make([]huh.Option[channel.Channel], 0, len(names))
	for _, ch := range names {
		options = append(options, huh.NewOption(ch.String(), ch))
	}
	return options
}

// newForm builds a form that honors ACCESSIBLE for screen readers and
// non-TTY input.
func newForm(cmd *cobra.Command, groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).
		WithAccessible(os.Getenv("ACCESSIBLE") != "").
		WithInput(cmd.InOrStdin()).
		WithOutput(cmd.ErrOrStderr())
}

func runChannelForm(cmd *cobra.Command, title string) (channel.Channel, error) {
	var selected channel.Channel
	form := newForm(cmd,
		huh.NewGroup(
			huh.NewSelect[channel.Channel]().
				Title(title).
				Options(channelOptions()...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", fmt.Errorf("selection cancelled: %w", err)
		}
		return "", fmt.Errorf("failed to get selection: %w", err)
	}
	return selected, nil
}
