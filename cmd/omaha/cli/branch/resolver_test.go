package branch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/fetch"
	"github.com/chromedocs/omaha/cmd/omaha/cli/future"
	"github.com/chromedocs/omaha/cmd/omaha/cli/store"
)

const (
	testCurrentURL = "https://omaha.test/json"
	testHistoryURL = "https://omaha.test/history"
)

// currentVersionsJSON reports stable 30 / branch 1599 on three desktop
// platforms and an older stable on cros; mobile entries must be ignored.
const currentVersionsJSON = `[
	{"os": "win", "versions": [
		{"channel": "stable", "version": "30.0.1599.101"},
		{"channel": "beta", "version": "31.0.1650.16"},
		{"channel": "dev", "version": "32.0.1671.3"}
	]},
	{"os": "mac", "versions": [
		{"channel": "stable", "version": "30.0.1599.101"},
		{"channel": "beta", "version": "31.0.1650.16"},
		{"channel": "dev", "version": "32.0.1671.3"}
	]},
	{"os": "linux", "versions": [
		{"channel": "stable", "version": "30.0.1599.101"},
		{"channel": "beta", "version": "31.0.1650.16"},
		{"channel": "dev", "version": "32.0.1671.3"}
	]},
	{"os": "cros", "versions": [
		{"channel": "stable", "version": "29.0.1547.70"},
		{"channel": "beta", "version": "31.0.1650.16"},
		{"channel": "dev", "version": "32.0.1664.3"}
	]},
	{"os": "android", "versions": [
		{"channel": "stable", "version": "99.0.9999.1"},
		{"channel": "stable", "version": "99.0.9999.1"},
		{"channel": "stable", "version": "99.0.9999.1"},
		{"channel": "stable", "version": "99.0.9999.1"}
	]},
	{"os": "ios", "versions": [{"channel": "beta", "version": "98.0.9998.1"}]}
]`

var knownBranches = map[int]int{29: 1547, 30: 1599, 31: 1650, 32: 1671}

func branchOf(version int) int {
	if b, ok := knownBranches[version]; ok {
		return b
	}
	return version * 50
}

// historyJSON lists one release per major version from 5 to 32, oldest first.
func historyJSON() string {
	var events []string
	for v := 5; v <= 32; v++ {
		events = append(events, fmt.Sprintf(`{"title": "Google Chrome %d - %d.0.%d.0"}`, v, v, branchOf(v)))
	}
	return `{"events": [` + strings.Join(events, ",") + `]}`
}

type fakeResponse struct {
	body string
	err  error
}

// fakeFetcher resolves every fetch immediately from a fixed table.
type fakeFetcher struct {
	responses map[string]fakeResponse

	mu    sync.Mutex
	calls []string
}

func newFakeFetcher(current, history string) *fakeFetcher {
	return &fakeFetcher{responses: map[string]fakeResponse{
		testCurrentURL: {body: current},
		testHistoryURL: {body: history},
	}}
}

func (f *fakeFetcher) FetchAsync(_ context.Context, url string) *future.Future[fetch.Response] {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	resp, ok := f.responses[url]
	if !ok {
		return future.Resolved(fetch.Response{}, fmt.Errorf("%s unreachable", url))
	}
	if resp.err != nil {
		return future.Resolved(fetch.Response{}, resp.err)
	}
	return future.Resolved(fetch.Response{StatusCode: 200, Content: []byte(resp.body)}, nil)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// spyStore counts writes to the wrapped store.
type spyStore struct {
	store.Store
	sets atomic.Int32
}

func (s *spyStore) Set(ctx context.Context, key string, value channel.Number) error {
	s.sets.Add(1)
	return s.Store.Set(ctx, key, value)
}

type spyCreator struct {
	inner  store.Creator
	mu     sync.Mutex
	stores map[string]*spyStore
}

func newSpyCreator() *spyCreator {
	return &spyCreator{inner: store.NewMemoryCreator(0), stores: make(map[string]*spyStore)}
}

//nolint:ireturn // store.Creator
func (c *spyCreator) Create(category string) (store.Store, error) {
	s, err := c.inner.Create(category)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	spy := &spyStore{Store: s}
	c.stores[category] = spy
	return spy, nil
}

func (c *spyCreator) sets(category string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.stores[category].sets.Load())
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (store.Entry, bool, error) {
	return store.Entry{}, false, errors.New("store offline")
}

func (failingStore) Set(context.Context, string, channel.Number) error {
	return errors.New("store offline")
}

type failingCreator struct{}

//nolint:ireturn // store.Creator
func (failingCreator) Create(string) (store.Store, error) { return failingStore{}, nil }

func newTestResolver(t *testing.T, f fetch.Fetcher, c store.Creator) *Resolver {
	t.Helper()
	r, err := New(context.Background(), testCurrentURL, testHistoryURL, f, c)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func newDefaultResolver(t *testing.T) *Resolver {
	t.Helper()
	return newTestResolver(t, newFakeFetcher(currentVersionsJSON, historyJSON()), store.NewMemoryCreator(0))
}

func TestNew_FetchesBothFeedsOnce(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(currentVersionsJSON, historyJSON())
	r := newTestResolver(t, f, store.NewMemoryCreator(0))
	assert.Equal(t, []string{testCurrentURL, testHistoryURL}, f.calls)

	ctx := context.Background()
	_, err := r.GetAllChannelInfo(ctx)
	require.NoError(t, err)
	_, err = r.GetLatestVersionNumber(ctx)
	require.NoError(t, err)
	_, err = r.GetBranchForVersion(ctx, 12)
	require.NoError(t, err)

	assert.Equal(t, 2, f.callCount(), "lookups never re-issue a fetch")
}

func TestCreate_DefaultEndpoints(t *testing.T) {
	t.Parallel()

	// A canceled ctx keeps the default fetches off the network.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := Create(ctx, store.NewMemoryCreator(0))
	require.NoError(t, err)
	defer r.Close()

	got, err := r.GetChannelInfo(context.Background(), channel.Trunk)
	require.NoError(t, err)
	assert.Equal(t, channel.TrunkInfo(), got)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testCurrentURL, testHistoryURL, nil, store.NewMemoryCreator(0))
	require.Error(t, err)
	_, err = New(context.Background(), testCurrentURL, testHistoryURL, newFakeFetcher("", ""), nil)
	require.Error(t, err)
}

// pendingFetcher hands out futures the test resolves later. Like the HTTP
// fetcher, a future fails once its context is canceled.
type pendingFetcher struct {
	futures  map[string]*future.Future[fetch.Response]
	finished atomic.Int32
}

func newPendingFetcher() *pendingFetcher {
	return &pendingFetcher{futures: make(map[string]*future.Future[fetch.Response])}
}

func (p *pendingFetcher) FetchAsync(ctx context.Context, url string) *future.Future[fetch.Response] {
	f := future.New[fetch.Response]()
	p.futures[url] = f
	go func() {
		select {
		case <-ctx.Done():
			// Work that outlives cancellation, such as logging the failure.
			time.Sleep(10 * time.Millisecond)
			p.finished.Add(1)
			f.Resolve(fetch.Response{}, ctx.Err())
		case <-f.Done():
		}
	}()
	return f
}

func TestNew_DoesNotBlockOnFetch(t *testing.T) {
	t.Parallel()

	p := newPendingFetcher()
	r := newTestResolver(t, p, store.NewMemoryCreator(0))

	type result struct {
		info channel.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := r.GetChannelInfo(context.Background(), channel.Beta)
		done <- result{info, err}
	}()

	select {
	case <-done:
		t.Fatal("lookup finished before the feed arrived")
	case <-time.After(20 * time.Millisecond):
	}

	p.futures[testCurrentURL].Resolve(fetch.Response{Content: []byte(currentVersionsJSON)}, nil)
	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, channel.NewInfo(channel.Beta, 1650, 31), got.info)
}

func TestGetChannelInfo_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	p := newPendingFetcher()
	r := newTestResolver(t, p, store.NewMemoryCreator(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetChannelInfo(ctx, channel.Stable)
	require.ErrorIs(t, err, context.Canceled, "cancellation is not a feed failure")
}

func TestClose_WaitsForCanceledFetches(t *testing.T) {
	t.Parallel()

	p := newPendingFetcher()
	r, err := New(context.Background(), testCurrentURL, testHistoryURL, p, store.NewMemoryCreator(0))
	require.NoError(t, err)

	r.Close()
	assert.Equal(t, int32(2), p.finished.Load(), "both fetches finish before Close returns")

	_, err = r.GetChannelInfo(context.Background(), channel.Stable)
	require.ErrorIs(t, err, context.Canceled, "a closed resolver does not fall back to trunk")
	_, err = r.GetBranchForVersion(context.Background(), 30)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClose_AfterFeedsArrived(t *testing.T) {
	t.Parallel()

	r, err := New(context.Background(), testCurrentURL, testHistoryURL,
		newFakeFetcher(currentVersionsJSON, historyJSON()), store.NewMemoryCreator(0))
	require.NoError(t, err)
	r.Close()

	got, err := r.GetChannelInfo(context.Background(), channel.Beta)
	require.NoError(t, err, "feeds that already arrived stay readable")
	assert.Equal(t, channel.NewInfo(channel.Beta, 1650, 31), got)
}

func TestWithMaxAge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	creator := store.NewMemoryCreator(0)

	first := newTestResolver(t, newFakeFetcher(currentVersionsJSON, historyJSON()), creator)
	_, err := first.GetAllChannelInfo(ctx)
	require.NoError(t, err)
	_, err = first.GetBranchForVersion(ctx, 30)
	require.NoError(t, err)
	_, err = first.GetLatestVersionNumber(ctx)
	require.NoError(t, err)

	// Stable moved to 31; the history feed is down.
	updated := strings.ReplaceAll(currentVersionsJSON, "30.0.1599.101", "31.0.1650.57")
	newer := func(maxAge, later time.Duration) *Resolver {
		f := &fakeFetcher{responses: map[string]fakeResponse{testCurrentURL: {body: updated}}}
		r, err := New(ctx, testCurrentURL, testHistoryURL, f, creator, WithMaxAge(maxAge))
		require.NoError(t, err)
		t.Cleanup(r.Close)
		r.now = func() time.Time { return time.Now().Add(later) }
		return r
	}

	t.Run("fresh entries are served", func(t *testing.T) {
		got, err := newer(time.Hour, 0).GetChannelInfo(ctx, channel.Stable)
		require.NoError(t, err)
		assert.Equal(t, channel.NewInfo(channel.Stable, 1599, 30), got)
	})

	t.Run("zero max age never expires", func(t *testing.T) {
		got, err := newer(0, 48*time.Hour).GetChannelInfo(ctx, channel.Stable)
		require.NoError(t, err)
		assert.Equal(t, channel.NewInfo(channel.Stable, 1599, 30), got)
	})

	t.Run("stale entries are derived again", func(t *testing.T) {
		r := newer(time.Hour, 2*time.Hour)

		got, err := r.GetChannelInfo(ctx, channel.Stable)
		require.NoError(t, err)
		assert.Equal(t, channel.NewInfo(channel.Stable, 1650, 31), got)

		branch, err := r.GetBranchForVersion(ctx, 30)
		require.NoError(t, err, "past branches never expire")
		assert.Equal(t, channel.Number(1599), branch)

		_, err = r.GetLatestVersionNumber(ctx)
		require.Error(t, err, "latest expires and the history feed is down")
	})
}

func TestGetChannelInfo(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	tests := []struct {
		ch   channel.Channel
		want channel.Info
	}{
		{channel.Stable, channel.NewInfo(channel.Stable, 1599, 30)},
		{channel.Beta, channel.NewInfo(channel.Beta, 1650, 31)},
		{channel.Dev, channel.NewInfo(channel.Dev, 1671, 32)},
		{channel.Trunk, channel.TrunkInfo()},
	}

	for _, tt := range tests {
		t.Run(string(tt.ch), func(t *testing.T) {
			t.Parallel()
			got, err := r.GetChannelInfo(context.Background(), tt.ch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ch, got.Channel)
		})
	}
}

func TestGetChannelInfo_UnknownChannel(t *testing.T) {
	t.Parallel()

	_, err := newDefaultResolver(t).GetChannelInfo(context.Background(), "canary")
	require.ErrorIs(t, err, channel.ErrUnknownChannel)
}

func TestGetChannelInfo_TrunkWithoutFeeds(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{responses: map[string]fakeResponse{}}
	r := newTestResolver(t, f, store.NewMemoryCreator(0))

	got, err := r.GetChannelInfo(context.Background(), channel.Trunk)
	require.NoError(t, err)
	assert.Equal(t, channel.TrunkInfo(), got)
}

func TestGetChannelInfo_FallsBackToTrunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{name: "unreachable", fetcher: &fakeFetcher{responses: map[string]fakeResponse{}}},
		{name: "fetch_error", fetcher: &fakeFetcher{responses: map[string]fakeResponse{
			testCurrentURL: {err: errors.New("503 from omahaproxy")},
		}}},
		{name: "malformed_json", fetcher: newFakeFetcher(`<html>oops</html>`, historyJSON())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			creator := newSpyCreator()
			r := newTestResolver(t, tt.fetcher, creator)

			got, err := r.GetChannelInfo(context.Background(), channel.Beta)
			require.NoError(t, err)
			assert.Equal(t, channel.NewInfo(channel.Beta, channel.TrunkNumber, channel.TrunkNumber), got)

			assert.Zero(t, creator.sets(BranchCategory), "fallback values are not cached")
			assert.Zero(t, creator.sets(VersionCategory), "fallback values are not cached")
		})
	}
}

func TestGetChannelInfo_NoChannelData(t *testing.T) {
	t.Parallel()

	current := `[{"os": "win", "versions": [{"channel": "stable", "version": "30.0.1599.101"}]},
		{"os": "android", "versions": [{"channel": "dev", "version": "32.0.1671.3"}]}]`
	r := newTestResolver(t, newFakeFetcher(current, historyJSON()), store.NewMemoryCreator(0))

	_, err := r.GetChannelInfo(context.Background(), channel.Dev)
	require.ErrorIs(t, err, ErrNoChannelData)
}

func TestGetChannelInfo_SkipsMalformedVersions(t *testing.T) {
	t.Parallel()

	current := `[{"os": "win", "versions": [
		{"channel": "beta", "version": "31.0"},
		{"channel": "beta", "version": "garbage"},
		{"channel": "beta", "version": "31.0.1650.16"}
	]}]`
	r := newTestResolver(t, newFakeFetcher(current, historyJSON()), store.NewMemoryCreator(0))

	got, err := r.GetChannelInfo(context.Background(), channel.Beta)
	require.NoError(t, err)
	assert.Equal(t, channel.NewInfo(channel.Beta, 1650, 31), got)
}

func TestGetChannelInfo_MostRepeatedBranchWins(t *testing.T) {
	t.Parallel()

	current := `[
		{"os": "win", "versions": [{"channel": "beta", "version": "31.0.1234.1"}]},
		{"os": "mac", "versions": [{"channel": "beta", "version": "31.0.1234.2"}]},
		{"os": "linux", "versions": [{"channel": "beta", "version": "31.0.1234.3"}]},
		{"os": "cros", "versions": [{"channel": "beta", "version": "31.0.5678.9"}]}
	]`
	r := newTestResolver(t, newFakeFetcher(current, historyJSON()), store.NewMemoryCreator(0))

	got, err := r.GetChannelInfo(context.Background(), channel.Beta)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(1234), got.Branch)
}

func TestGetChannelInfo_Idempotent(t *testing.T) {
	t.Parallel()

	creator := newSpyCreator()
	f := newFakeFetcher(currentVersionsJSON, historyJSON())
	r := newTestResolver(t, f, creator)
	ctx := context.Background()

	for _, ch := range channel.AllNames() {
		first, err := r.GetChannelInfo(ctx, ch)
		require.NoError(t, err)
		branchSets, versionSets := creator.sets(BranchCategory), creator.sets(VersionCategory)

		second, err := r.GetChannelInfo(ctx, ch)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, branchSets, creator.sets(BranchCategory), "second lookup of %s is a cache hit", ch)
		assert.Equal(t, versionSets, creator.sets(VersionCategory), "second lookup of %s is a cache hit", ch)
	}
	assert.Equal(t, 2, f.callCount())
}

func TestGetChannelInfo_ServesCachedValues(t *testing.T) {
	t.Parallel()

	creator := store.NewMemoryCreator(0)
	branches, err := creator.Create(BranchCategory)
	require.NoError(t, err)
	versions, err := creator.Create(VersionCategory)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, branches.Set(ctx, "stable", 1500))
	require.NoError(t, versions.Set(ctx, "stable", 27))

	// The feed is unreachable, so only the cache can answer.
	r := newTestResolver(t, &fakeFetcher{responses: map[string]fakeResponse{}}, creator)
	got, err := r.GetChannelInfo(ctx, channel.Stable)
	require.NoError(t, err)
	assert.Equal(t, channel.NewInfo(channel.Stable, 1500, 27), got)
}

func TestGetChannelInfo_StoreFailuresAreMisses(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, historyJSON()), failingCreator{})

	got, err := r.GetChannelInfo(context.Background(), channel.Stable)
	require.NoError(t, err)
	assert.Equal(t, channel.NewInfo(channel.Stable, 1599, 30), got)

	branch, err := r.GetBranchForVersion(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(1000), branch)
}

func TestGetBranchForVersion(t *testing.T) {
	t.Parallel()

	history := `{"events": [{"title": "X - 10.0.100.0"}, {"title": "Y - 11.0.200.0"}]}`
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, history), store.NewMemoryCreator(0))
	ctx := context.Background()

	branch, err := r.GetBranchForVersion(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(200), branch)

	branch, err = r.GetBranchForVersion(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(100), branch)

	branch, err = r.GetBranchForVersion(ctx, channel.TrunkNumber)
	require.NoError(t, err)
	assert.True(t, branch.IsTrunk())
}

func TestGetBranchForVersion_FirstEventWins(t *testing.T) {
	t.Parallel()

	history := `{"events": [
		{"title": "no separator here"},
		{"title": "bad - 12.0"},
		{"title": "first - 12.0.742.0"},
		{"title": "respin - 12.0.743.5"}
	]}`
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, history), store.NewMemoryCreator(0))

	branch, err := r.GetBranchForVersion(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(742), branch)
}

func TestGetBranchForVersion_NotFound(t *testing.T) {
	t.Parallel()

	_, err := newDefaultResolver(t).GetBranchForVersion(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, channel.Number(999), nf.Version)
	assert.Equal(t, "branch for version 999 not found", err.Error())
}

func TestGetBranchForVersion_Cached(t *testing.T) {
	t.Parallel()

	creator := newSpyCreator()
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, historyJSON()), creator)
	ctx := context.Background()

	first, err := r.GetBranchForVersion(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(1599), first)
	sets := creator.sets(BranchCategory)

	second, err := r.GetBranchForVersion(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, sets, creator.sets(BranchCategory))
}

func TestGetBranchForVersion_MalformedHistory(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, `not json`), store.NewMemoryCreator(0))

	_, err := r.GetBranchForVersion(context.Background(), 30)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetLatestVersionNumber(t *testing.T) {
	t.Parallel()

	history := `{"events": [{"title": "X - 10.0.100.0"}, {"title": "Y - 11.0.200.0"}]}`
	creator := newSpyCreator()
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, history), creator)
	ctx := context.Background()

	latest, err := r.GetLatestVersionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(11), latest)
	assert.Equal(t, 1, creator.sets(VersionCategory))

	latest, err = r.GetLatestVersionNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, channel.Number(11), latest)
	assert.Equal(t, 1, creator.sets(VersionCategory), "second lookup is a cache hit")
}

func TestGetLatestVersionNumber_ScansEveryEvent(t *testing.T) {
	t.Parallel()

	// Out-of-order and bogus entries: the maximum wins, not the last event.
	history := `{"events": [
		{"title": "a - 30.0.1599.0"},
		{"title": "typo - 300.0.1.0"},
		{"title": "b - 31.0.1650.0"},
		{"title": "junk"}
	]}`
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, history), store.NewMemoryCreator(0))

	latest, err := r.GetLatestVersionNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.Number(300), latest)
}

func TestGetLatestVersionNumber_EmptyHistory(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, `{"events": []}`), store.NewMemoryCreator(0))

	latest, err := r.GetLatestVersionNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, channel.Number(0), latest)
}

func TestGetStableChannelInfo(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	got, err := r.GetStableChannelInfo(context.Background(), 29)
	require.NoError(t, err)
	assert.Equal(t, channel.NewInfo(channel.Stable, 1547, 29), got)

	_, err = r.GetStableChannelInfo(context.Background(), 4)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetChannelForVersion(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	tests := []struct {
		version channel.Number
		want    channel.Channel
		wantOK  bool
	}{
		{version: 5, want: channel.Stable, wantOK: true},
		{version: 29, want: channel.Stable, wantOK: true},
		{version: 30, want: channel.Stable, wantOK: true},
		{version: 31, want: channel.Beta, wantOK: true},
		{version: 32, want: channel.Dev, wantOK: true},
		{version: 33, wantOK: false},
		{version: channel.TrunkNumber, want: channel.Trunk, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			t.Parallel()
			got, ok, err := r.GetChannelForVersion(context.Background(), tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewer(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   channel.Info
		want *channel.Info
	}{
		{
			name: "old_stable_steps_one_version",
			in:   channel.NewInfo(channel.Stable, 250, 5),
			want: &channel.Info{Channel: channel.Stable, Branch: 300, Version: 6},
		},
		{
			name: "stable_before_current",
			in:   channel.NewInfo(channel.Stable, 1547, 29),
			want: &channel.Info{Channel: channel.Stable, Branch: 1599, Version: 30},
		},
		{
			name: "current_stable_moves_to_beta",
			in:   channel.NewInfo(channel.Stable, 1599, 30),
			want: &channel.Info{Channel: channel.Beta, Branch: 1650, Version: 31},
		},
		{
			name: "beta_to_dev",
			in:   channel.NewInfo(channel.Beta, 1650, 31),
			want: &channel.Info{Channel: channel.Dev, Branch: 1671, Version: 32},
		},
		{
			name: "dev_to_trunk",
			in:   channel.NewInfo(channel.Dev, 1671, 32),
			want: &channel.Info{Channel: channel.Trunk, Branch: channel.TrunkNumber, Version: channel.TrunkNumber},
		},
		{
			name: "trunk_is_terminal",
			in:   channel.NewInfo(channel.Trunk, channel.TrunkNumber, channel.TrunkNumber),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Newer(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOlder(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   channel.Info
		want *channel.Info
	}{
		{
			name: "trunk_to_dev",
			in:   channel.TrunkInfo(),
			want: &channel.Info{Channel: channel.Dev, Branch: 1671, Version: 32},
		},
		{
			name: "dev_to_beta",
			in:   channel.NewInfo(channel.Dev, 1671, 32),
			want: &channel.Info{Channel: channel.Beta, Branch: 1650, Version: 31},
		},
		{
			name: "beta_to_current_stable",
			in:   channel.NewInfo(channel.Beta, 1650, 31),
			want: &channel.Info{Channel: channel.Stable, Branch: 1599, Version: 30},
		},
		{
			name: "stable_steps_back_one_version",
			in:   channel.NewInfo(channel.Stable, 1599, 30),
			want: &channel.Info{Channel: channel.Stable, Branch: 1547, Version: 29},
		},
		{
			name: "stable_6_to_5",
			in:   channel.NewInfo(channel.Stable, 300, 6),
			want: &channel.Info{Channel: channel.Stable, Branch: 250, Version: 5},
		},
		{
			name: "stable_5_is_the_floor",
			in:   channel.NewInfo(channel.Stable, 250, 5),
			want: nil,
		},
		{
			name: "below_the_floor",
			in:   channel.NewInfo(channel.Stable, 1, 2),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Older(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOlder_StableFloor(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	five, err := r.GetStableChannelInfo(ctx, 5)
	require.NoError(t, err)
	got, err := r.Older(ctx, five)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewer_TrunkCeiling(t *testing.T) {
	t.Parallel()

	// The Number fields of a trunk Info play no part.
	got, err := newDefaultResolver(t).Newer(context.Background(), channel.NewInfo(channel.Trunk, 1, 1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewerOlder_RoundTrip(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	var inputs []channel.Info
	for v := 6; v <= 30; v++ {
		info, err := r.GetStableChannelInfo(ctx, channel.Number(v))
		require.NoError(t, err)
		inputs = append(inputs, info)
	}
	for _, ch := range []channel.Channel{channel.Beta, channel.Dev} {
		info, err := r.GetChannelInfo(ctx, ch)
		require.NoError(t, err)
		inputs = append(inputs, info)
	}

	for _, x := range inputs {
		older, err := r.Older(ctx, x)
		require.NoError(t, err)
		require.NotNil(t, older, "Older(%s)", x)

		back, err := r.Newer(ctx, *older)
		require.NoError(t, err)
		require.NotNil(t, back, "Newer(%s)", older)
		assert.Equal(t, x, *back)
	}
}

func TestNewerOlder_UnknownChannel(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	bogus := channel.NewInfo("canary", 1, 1)

	_, err := r.Newer(context.Background(), bogus)
	require.ErrorIs(t, err, channel.ErrUnknownChannel)
	_, err = r.Older(context.Background(), bogus)
	require.ErrorIs(t, err, channel.ErrUnknownChannel)
}

func TestOlder_StableWithUnknownVersion(t *testing.T) {
	t.Parallel()

	_, err := newDefaultResolver(t).Older(context.Background(),
		channel.NewInfo(channel.Stable, channel.TrunkNumber, channel.TrunkNumber))
	require.ErrorIs(t, err, ErrNoChannelData)
}

func TestGetAll(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	infos, err := r.GetAllChannelInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Info{
		channel.NewInfo(channel.Stable, 1599, 30),
		channel.NewInfo(channel.Beta, 1650, 31),
		channel.NewInfo(channel.Dev, 1671, 32),
		channel.TrunkInfo(),
	}, infos)

	branches, err := r.GetAllBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ChannelBranch{
		{Channel: channel.Stable, Branch: 1599},
		{Channel: channel.Beta, Branch: 1650},
		{Channel: channel.Dev, Branch: 1671},
		{Channel: channel.Trunk, Branch: channel.TrunkNumber},
	}, branches)

	versions, err := r.GetAllVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []channel.Number{30, 31, 32, channel.TrunkNumber}, versions)
}

func TestWarm(t *testing.T) {
	t.Parallel()

	creator := store.NewMemoryCreator(0)
	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, historyJSON()), creator)
	ctx := context.Background()

	require.NoError(t, r.Warm(ctx))

	branches, err := creator.Create(BranchCategory)
	require.NoError(t, err)
	versions, err := creator.Create(VersionCategory)
	require.NoError(t, err)

	for _, ch := range []channel.Channel{channel.Stable, channel.Beta, channel.Dev} {
		_, ok, err := branches.Get(ctx, string(ch))
		require.NoError(t, err)
		assert.True(t, ok, "branch of %s cached", ch)
		_, ok, err = versions.Get(ctx, string(ch))
		require.NoError(t, err)
		assert.True(t, ok, "version of %s cached", ch)
	}
	latest, ok, err := versions.Get(ctx, "latest")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, channel.Number(32), latest.Value)
}

func TestWarm_PropagatesErrors(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeFetcher(currentVersionsJSON, `not json`), store.NewMemoryCreator(0))
	require.Error(t, r.Warm(context.Background()))
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()

	r := newDefaultResolver(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := r.GetChannelInfo(ctx, channel.Beta)
			assert.NoError(t, err)
			assert.Equal(t, channel.NewInfo(channel.Beta, 1650, 31), info)
		}()
	}
	wg.Wait()
}
