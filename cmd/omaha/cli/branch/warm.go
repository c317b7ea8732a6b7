package branch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/logging"
)

// Warm resolves every channel and the latest version concurrently so later
// lookups are served from the stores. Lookups that race on the same key
// derive the same value; the last write wins.
func (r *Resolver) Warm(ctx context.Context) error {
	ctx = logging.WithComponent(ctx, "branch")
	defer logging.LogDuration(ctx, slog.LevelDebug, "cache warmed", time.Now())

	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range channel.AllNames() {
		g.Go(func() error {
			_, err := r.GetChannelInfo(gctx, ch)
			return err
		})
	}
	g.Go(func() error {
		_, err := r.GetLatestVersionNumber(gctx)
		return err
	})
	return g.Wait()
}
