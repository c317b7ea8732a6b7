// Package fetch issues non-blocking HTTP GETs whose results are read later
// through a future.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/chromedocs/omaha/cmd/omaha/cli/future"
	"github.com/chromedocs/omaha/cmd/omaha/cli/logging"
	"github.com/chromedocs/omaha/redact"
)

const (
	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 10 * time.Second

	// maxBodySize is the largest response body accepted (4MB).
	maxBodySize = 4 << 20

	userAgent = "omaha-cli"
)

// ErrResponseTooLarge is returned for bodies over the read limit.
var ErrResponseTooLarge = errors.New("response too large")

// Response is a completed fetch.
type Response struct {
	StatusCode int
	Content    []byte
}

// Fetcher starts a fetch and returns immediately. The result is read with
// Get on the returned future.
type Fetcher interface {
	FetchAsync(ctx context.Context, url string) *future.Future[Response]
}

// HTTPFetcher fetches over HTTP. The zero value uses http.DefaultTransport and
// DefaultTimeout.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher returns an HTTPFetcher with the given per-request timeout.
// A non-positive timeout selects DefaultTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{}, Timeout: timeout}
}

// FetchAsync starts a GET for url in the background. Non-2xx responses
// resolve the future with an error.
func (f *HTTPFetcher) FetchAsync(ctx context.Context, url string) *future.Future[Response] {
	ctx = logging.WithComponent(ctx, "fetch")
	logURL := redact.URL(url)
	return future.Go(func() (Response, error) {
		start := time.Now()
		resp, err := f.fetch(ctx, url)
		if err != nil && ctx.Err() != nil {
			logging.Debug(ctx, "fetch canceled",
				slog.String("url", logURL),
				slog.String("error", err.Error()))
			return resp, err
		}
		if err != nil {
			logging.Warn(ctx, "fetch failed",
				slog.String("url", logURL),
				slog.String("error", err.Error()))
			return resp, err
		}
		logging.LogDuration(ctx, slog.LevelDebug, "fetch completed", start,
			slog.String("url", logURL),
			slog.Int("status", resp.StatusCode),
			slog.Int("bytes", len(resp.Content)))
		return resp, nil
	})
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) (Response, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	client := f.Client
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		// *url.Error repeats the raw URL, which may carry credentials.
		var urlErr *neturl.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return Response{}, fmt.Errorf("fetching %s: %w", redact.URL(url), err)
	}
	defer resp.Body.Close()

	result := Response{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return result, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > maxBodySize {
		return result, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxBodySize)
	}
	result.Content = body
	return result, nil
}
