// Package fetcher downloads portal pages and files over HTTP and extracts
// links from HTML listings.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	// The path is only created once the whole body has been received.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
