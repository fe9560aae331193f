package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// PerHostRate spaces requests to the same host (requests per second).
	PerHostRate  rate.Limit
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher implements Fetcher using net/http. Each call makes exactly one
// request; failures are returned to the caller, never retried.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "portal-etl/1.0"
	}
	if opts.PerHostRate == 0 {
		opts.PerHostRate = 2
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiterFor returns the limiter for the URL's host, creating one at the
// configured per-host rate on first use.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(f.opts.PerHostRate, 1)
	f.limiters[host] = lim
	return lim
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	if err := f.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", rawURL)
	}
	zap.L().Debug("http get",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, eris.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes the body verbatim to path. The
// body is streamed into a temporary file next to path and renamed into place
// on success, so a failed transfer leaves nothing behind.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return n, eris.Wrap(err, "chmod file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}

	return n, nil
}
