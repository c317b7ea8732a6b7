// Package branch resolves Chrome release channels into branch and version
// numbers using the OmahaProxy current-versions and history feeds.
//
// Both feeds are requested once, when the Resolver is created, and read the
// first time a lookup needs them. Every derived number is written to a
// store.Store so later lookups never touch the feeds again. Branches of
// past versions never change; channel values and the latest version can be
// given a maximum age with WithMaxAge.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/feed"
	"github.com/chromedocs/omaha/cmd/omaha/cli/fetch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/future"
	"github.com/chromedocs/omaha/cmd/omaha/cli/logging"
	"github.com/chromedocs/omaha/cmd/omaha/cli/store"
)

// Default OmahaProxy endpoints.
const (
	DefaultCurrentVersionsURL = "https://omahaproxy.appspot.com/json"
	DefaultHistoryURL         = "https://omahaproxy.appspot.com/history?channel=dev&os=win&json=1"
)

// Store categories and fixed keys.
const (
	BranchCategory  = "branch"
	VersionCategory = "version"

	latestKey = "latest"
)

// OldestVersion is the first stable version with history data.
const OldestVersion channel.Number = 5

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrNoChannelData is returned when the current-versions feed has no
	// usable entry for a channel.
	ErrNoChannelData = errors.New("no channel data")
)

// NotFoundError is returned when the history feed has no release for Version.
type NotFoundError struct {
	Version channel.Number
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("branch for version %s not found", e.Version)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ChannelBranch pairs a channel with its current branch.
type ChannelBranch struct {
	Channel channel.Channel `json:"channel"`
	Branch  channel.Number  `json:"branch"`
}

// Resolver answers channel, branch and version queries.
// It is safe for concurrent use when its stores are.
type Resolver struct {
	branches store.Store
	versions store.Store
	maxAge   time.Duration
	now      func() time.Time

	cancel          context.CancelFunc
	currentVersions *future.Future[fetch.Response]
	history         *future.Future[fetch.Response]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxAge makes cached channel values and the latest version stale once
// they are older than d. Stale values are derived again from the feeds.
// A non-positive d keeps them forever.
func WithMaxAge(d time.Duration) Option {
	return func(r *Resolver) {
		r.maxAge = d
	}
}

// New creates a Resolver and starts fetching both feeds. It does not wait
// for either fetch to finish. Call Close when done with the Resolver.
func New(ctx context.Context, currentVersionsURL, historyURL string, fetcher fetch.Fetcher, creator store.Creator, opts ...Option) (*Resolver, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if creator == nil {
		return nil, errors.New("store creator is required")
	}

	branches, err := creator.Create(BranchCategory)
	if err != nil {
		return nil, fmt.Errorf("creating branch store: %w", err)
	}
	versions, err := creator.Create(VersionCategory)
	if err != nil {
		return nil, fmt.Errorf("creating version store: %w", err)
	}

	r := &Resolver{
		branches: branches,
		versions: versions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.currentVersions = fetcher.FetchAsync(fetchCtx, currentVersionsURL)
	r.history = fetcher.FetchAsync(fetchCtx, historyURL)
	return r, nil
}

// Create returns a Resolver for the default OmahaProxy endpoints using the
// HTTP fetcher.
func Create(ctx context.Context, creator store.Creator, opts ...Option) (*Resolver, error) {
	return New(ctx, DefaultCurrentVersionsURL, DefaultHistoryURL, fetch.NewHTTPFetcher(fetch.DefaultTimeout), creator, opts...)
}

// Close cancels any feed fetch still in flight and waits for both to
// finish. Lookups after Close that need a feed fail with context.Canceled
// unless the feed had already arrived.
func (r *Resolver) Close() {
	r.cancel()
	<-r.currentVersions.Done()
	<-r.history.Done()
}

// GetChannelInfo returns the current branch and version of ch.
//
// If the current-versions feed cannot be fetched or parsed, the branch and
// version fall back to trunk and nothing is cached.
func (r *Resolver) GetChannelInfo(ctx context.Context, ch channel.Channel) (channel.Info, error) {
	if !ch.Valid() {
		return channel.Info{}, fmt.Errorf("%w: %q", channel.ErrUnknownChannel, ch)
	}
	branch, err := r.extractFromVersionFeed(ctx, ch, kindBranch)
	if err != nil {
		return channel.Info{}, err
	}
	version, err := r.extractFromVersionFeed(ctx, ch, kindVersion)
	if err != nil {
		return channel.Info{}, err
	}
	return channel.NewInfo(ch, branch, version), nil
}

// GetStableChannelInfo returns the stable release with the given version.
func (r *Resolver) GetStableChannelInfo(ctx context.Context, version channel.Number) (channel.Info, error) {
	branch, err := r.GetBranchForVersion(ctx, version)
	if err != nil {
		return channel.Info{}, err
	}
	return channel.NewInfo(channel.Stable, branch, version), nil
}

// GetBranchForVersion returns the branch of the first release of version in
// the history feed. It returns a *NotFoundError when there is none.
func (r *Resolver) GetBranchForVersion(ctx context.Context, version channel.Number) (channel.Number, error) {
	if version.IsTrunk() {
		return channel.TrunkNumber, nil
	}

	ctx = logging.WithComponent(ctx, "branch")
	key := strconv.Itoa(version.Int())
	if branch, ok := r.cached(ctx, r.branches, key, 0); ok {
		return branch, nil
	}

	history, err := r.loadHistory(ctx)
	if err != nil {
		return 0, err
	}
	for _, event := range history.Events {
		v, err := event.Version()
		if err != nil {
			continue
		}
		if v.Major == version.Int() {
			branch := channel.Number(v.Branch)
			r.cache(ctx, r.branches, key, branch)
			return branch, nil
		}
	}
	return 0, &NotFoundError{Version: version}
}

// GetLatestVersionNumber returns the highest major version in the history
// feed. Every event is scanned, so a single bogus title with a huge version
// wins.
func (r *Resolver) GetLatestVersionNumber(ctx context.Context) (channel.Number, error) {
	ctx = logging.WithComponent(ctx, "branch")
	if latest, ok := r.cached(ctx, r.versions, latestKey, r.maxAge); ok {
		return latest, nil
	}

	history, err := r.loadHistory(ctx)
	if err != nil {
		return 0, err
	}
	latest := 0
	for _, event := range history.Events {
		v, err := event.Version()
		if err != nil {
			continue
		}
		if v.Major > latest {
			latest = v.Major
		}
	}

	r.cache(ctx, r.versions, latestKey, channel.Number(latest))
	return channel.Number(latest), nil
}

// GetChannelForVersion returns the channel that version belongs to. Stable
// claims every version up to and including its own; other channels need an
// exact match. ok is false when no channel matches.
func (r *Resolver) GetChannelForVersion(ctx context.Context, version channel.Number) (ch channel.Channel, ok bool, err error) {
	infos, err := r.GetAllChannelInfo(ctx)
	if err != nil {
		return "", false, err
	}
	for _, info := range infos {
		if info.Channel == channel.Stable && !info.Version.Less(version) {
			return info.Channel, true, nil
		}
		if info.Version == version {
			return info.Channel, true, nil
		}
	}
	return "", false, nil
}

// Newer returns the next most recent release after info, or nil when info is
// trunk. Stable releases older than the live stable version step forward one
// version at a time before moving on to beta.
func (r *Resolver) Newer(ctx context.Context, info channel.Info) (*channel.Info, error) {
	idx := info.Channel.Index()
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", channel.ErrUnknownChannel, info.Channel)
	}
	if info.Channel == channel.Trunk {
		return nil, nil
	}
	if info.Channel == channel.Stable {
		stable, err := r.GetChannelInfo(ctx, channel.Stable)
		if err != nil {
			return nil, err
		}
		if info.Version.Less(stable.Version) {
			next, err := r.GetStableChannelInfo(ctx, info.Version+1)
			if err != nil {
				return nil, err
			}
			return &next, nil
		}
	}
	return r.channelAt(ctx, idx+1)
}

// Older returns the release before info, or nil for stable versions at or
// below OldestVersion.
func (r *Resolver) Older(ctx context.Context, info channel.Info) (*channel.Info, error) {
	idx := info.Channel.Index()
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", channel.ErrUnknownChannel, info.Channel)
	}
	if info.Channel == channel.Stable {
		if info.Version.IsTrunk() {
			return nil, fmt.Errorf("%w: stable version is unknown", ErrNoChannelData)
		}
		if !OldestVersion.Less(info.Version) {
			return nil, nil
		}
		prev, err := r.GetStableChannelInfo(ctx, info.Version-1)
		if err != nil {
			return nil, err
		}
		return &prev, nil
	}
	return r.channelAt(ctx, idx-1)
}

// channelAt returns the current info of the channel at idx in the
// enumeration, or nil when idx is out of range.
func (r *Resolver) channelAt(ctx context.Context, idx int) (*channel.Info, error) {
	if idx < 0 || idx >= len(channel.AllNames()) {
		return nil, nil
	}
	infos, err := r.GetAllChannelInfo(ctx)
	if err != nil {
		return nil, err
	}
	info := infos[idx]
	return &info, nil
}

// GetAllBranches returns the current branch of every channel, oldest first.
func (r *Resolver) GetAllBranches(ctx context.Context) ([]ChannelBranch, error) {
	infos, err := r.GetAllChannelInfo(ctx)
	if err != nil {
		return nil, err
	}
	branches := make([]ChannelBranch, 0, len(infos))
	for _, info := range infos {
		branches = append(branches, ChannelBranch{Channel: info.Channel, Branch: info.Branch})
	}
	return branches, nil
}

// GetAllVersions returns the current version of every channel, oldest first.
func (r *Resolver) GetAllVersions(ctx context.Context) ([]channel.Number, error) {
	infos, err := r.GetAllChannelInfo(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]channel.Number, 0, len(infos))
	for _, info := range infos {
		versions = append(versions, info.Version)
	}
	return versions, nil
}

// GetAllChannelInfo returns the current info of every channel, oldest first.
func (r *Resolver) GetAllChannelInfo(ctx context.Context) ([]channel.Info, error) {
	names := channel.AllNames()
	infos := make([]channel.Info, 0, len(names))
	for _, ch := range names {
		info, err := r.GetChannelInfo(ctx, ch)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// cached reads key from s. Store failures and entries older than maxAge are
// treated as a miss.
func (r *Resolver) cached(ctx context.Context, s store.Store, key string, maxAge time.Duration) (channel.Number, bool) {
	e, ok, err := s.Get(ctx, key)
	if err != nil {
		logging.Debug(ctx, "cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return 0, false
	}
	if !ok {
		return 0, false
	}
	if e.OlderThan(maxAge, r.now()) {
		logging.Debug(ctx, "cache entry expired",
			slog.String("key", key),
			slog.Time("written", e.Written))
		return 0, false
	}
	return e.Value, true
}

// cache writes key to s. Failures are logged; the value is still returned
// to the caller.
func (r *Resolver) cache(ctx context.Context, s store.Store, key string, value channel.Number) {
	if err := s.Set(ctx, key, value); err != nil {
		logging.Debug(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

func (r *Resolver) loadHistory(ctx context.Context) (feed.History, error) {
	resp, err := r.history.Get(ctx)
	if err != nil {
		return feed.History{}, fmt.Errorf("fetching release history: %w", err)
	}
	history, err := feed.DecodeHistory(resp.Content)
	if err != nil {
		return feed.History{}, err
	}
	return history, nil
}
