package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/feed"
	"github.com/chromedocs/omaha/cmd/omaha/cli/logging"
	"github.com/chromedocs/omaha/cmd/omaha/cli/store"
)

// dataKind selects which dotted component of a version string is extracted.
type dataKind int

const (
	kindBranch dataKind = iota
	kindVersion
)

func (k dataKind) String() string {
	if k == kindBranch {
		return "branch"
	}
	return "version"
}

// component is the index into MAJOR.minor.BRANCH.patch.
func (k dataKind) component() int {
	if k == kindBranch {
		return 2
	}
	return 0
}

func (r *Resolver) storeFor(k dataKind) store.Store {
	if k == kindBranch {
		return r.branches
	}
	return r.versions
}

// extractFromVersionFeed returns the branch or version number of ch as
// reported by the current-versions feed.
func (r *Resolver) extractFromVersionFeed(ctx context.Context, ch channel.Channel, kind dataKind) (channel.Number, error) {
	if ch == channel.Trunk {
		return channel.TrunkNumber, nil
	}

	ctx = logging.WithChannel(logging.WithComponent(ctx, "branch"), string(ch))
	s := r.storeFor(kind)
	if v, ok := r.cached(ctx, s, string(ch), r.maxAge); ok {
		return v, nil
	}

	platforms, err := r.loadCurrentVersions(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return 0, err
		}
		// OmahaProxy has been known to misbehave. Serve trunk until it recovers.
		logging.Error(ctx, "failed to fetch or parse current versions, falling back to trunk",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
		return channel.TrunkNumber, nil
	}

	number, ok := mostRepeated(tallyComponent(platforms, ch, kind.component()))
	if !ok {
		return 0, fmt.Errorf("%s for channel %s: %w", kind, ch, ErrNoChannelData)
	}

	r.cache(ctx, s, string(ch), number)
	logging.Debug(ctx, "resolved channel from current versions",
		slog.String("kind", kind.String()),
		slog.String("value", number.String()))
	return number, nil
}

func (r *Resolver) loadCurrentVersions(ctx context.Context) ([]feed.Platform, error) {
	resp, err := r.currentVersions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching current versions: %w", err)
	}
	return feed.DecodeCurrentVersions(resp.Content)
}

// tallyComponent counts how often each value of the given version component
// appears for ch across desktop platforms. A value's tally starts at 0 on its
// first sighting and grows by one per repeat.
func tallyComponent(platforms []feed.Platform, ch channel.Channel, component int) map[int]int {
	tally := make(map[int]int)
	for _, p := range platforms {
		if !p.IsDesktop() {
			continue
		}
		for _, release := range p.Versions {
			if release.Channel != string(ch) {
				continue
			}
			v, err := feed.ParseVersion(release.Version)
			if err != nil {
				continue
			}
			n, ok := v.Component(component)
			if !ok {
				continue
			}
			if _, seen := tally[n]; seen {
				tally[n]++
			} else {
				tally[n] = 0
			}
		}
	}
	return tally
}

// mostRepeated returns the number with the highest tally. Ties go to
// whichever the map yields first, so they are not deterministic.
func mostRepeated(tally map[int]int) (channel.Number, bool) {
	best, bestCount, found := 0, 0, false
	for n, count := range tally {
		if !found || count > bestCount {
			best, bestCount, found = n, count, true
		}
	}
	return channel.Number(best), found
}
