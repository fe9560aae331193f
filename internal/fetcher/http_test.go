package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		PerHostRate: rate.Inf,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/file", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not remain")
}

func TestDownloadToFile_BytesVerbatim(t *testing.T) {
	payload := []byte{'a', ';', 0xE7, '\r', '\n', 0x81}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "raw.csv")
	_, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadToFile_ErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "missing.csv")
	_, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL+"/notfound", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadToFile_TruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent, then drop the connection.
		w.Header().Set("Content-Length", "100")
		w.Write([]byte("partial"))
		hj, ok := w.(http.Hijacker)
		if ok {
			conn, _, _ := hj.Hijack()
			conn.Close() //nolint:errcheck
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, filepath.Join(dir, "cut.csv"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_NoRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL+"/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_Accepts2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	body.Close()
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Download(ctx, srv.URL+"/data")
	require.Error(t, err)
}

func TestRateLimiting(t *testing.T) {
	var reqTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTimes = append(reqTimes, time.Now())
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// 4 req/s with burst 1 for every host.
	f := NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		PerHostRate: 4,
	})

	ctx := context.Background()
	for range 3 {
		body, err := f.Download(ctx, srv.URL+"/limited")
		require.NoError(t, err)
		body.Close()
	}

	require.Len(t, reqTimes, 3)
	duration := reqTimes[2].Sub(reqTimes[0])
	assert.GreaterOrEqual(t, duration.Milliseconds(), int64(400), "requests should be rate limited")
}

func TestLimiterFor_ReusesPerHost(t *testing.T) {
	f := newTestFetcher()
	a := f.limiterFor("https://dados.antt.gov.br/a.csv")
	b := f.limiterFor("https://dados.antt.gov.br/b.csv")
	c := f.limiterFor("https://other.example/c.csv")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.NotNil(t, f.limiterFor("://invalid-url"))
}

func TestLimiterFor_Configured(t *testing.T) {
	custom := rate.NewLimiter(1, 1)
	f := NewHTTPFetcher(HTTPOptions{RateLimiters: map[string]*rate.Limiter{"dados.antt.gov.br": custom}})
	assert.Same(t, custom, f.limiterFor("https://dados.antt.gov.br/x"))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "portal-etl/1.0", f.opts.UserAgent)
	assert.Equal(t, 60*time.Second, f.opts.Timeout)
	assert.Equal(t, rate.Limit(2), f.opts.PerHostRate)
}
