// Package crawl discovers data files on a portal listing page and downloads
// the ones missing from the local target directory.
package crawl

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/fetcher"
)

// Result lists what a crawl did with each link it saw.
type Result struct {
	Downloaded []string
	Skipped    []string // already present locally
	Ignored    []string // candidate suffix but rejected by the rules
	Failed     []string
	Bytes      int64
}

// Crawler downloads accepted files from a listing page into Dir.
type Crawler struct {
	fetcher fetcher.Fetcher
	rules   Rules
	dir     string
}

// New creates a Crawler writing into dir.
func New(f fetcher.Fetcher, rules Rules, dir string) *Crawler {
	return &Crawler{fetcher: f, rules: rules, dir: dir}
}

// Run fetches the listing page once and downloads every accepted file that
// is not already in the target directory. A failure to fetch or parse the
// listing is returned; a failure on an individual file is logged, recorded in
// the result and does not stop the crawl.
func (c *Crawler) Run(ctx context.Context, listingURL string) (*Result, error) {
	log := zap.L().With(zap.String("component", "crawl"), zap.String("listing", listingURL))

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "crawl: create target dir %s", c.dir)
	}

	body, err := c.fetcher.Download(ctx, listingURL)
	if err != nil {
		return nil, eris.Wrap(err, "crawl: fetch listing")
	}
	links, err := fetcher.ExtractLinks(body, listingURL)
	_ = body.Close()
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse listing")
	}

	log.Info("listing fetched", zap.Int("links", len(links)))

	result := &Result{}
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !c.rules.Candidate(link.Href) {
			continue
		}

		name := FileName(link.Href)
		if !c.rules.Accept(name) {
			log.Info("file ignored", zap.String("file", name))
			result.Ignored = append(result.Ignored, name)
			continue
		}

		path := filepath.Join(c.dir, name)
		exists, err := fileExists(path)
		if err != nil {
			log.Error("stat failed", zap.String("file", name), zap.Error(err))
			result.Failed = append(result.Failed, name)
			continue
		}
		if exists {
			log.Info("file already exists", zap.String("file", name))
			result.Skipped = append(result.Skipped, name)
			continue
		}

		n, err := c.fetcher.DownloadToFile(ctx, link.URL, path)
		if err != nil {
			log.Error("download failed", zap.String("file", name), zap.String("url", link.URL), zap.Error(err))
			result.Failed = append(result.Failed, name)
			continue
		}
		log.Info("download complete", zap.String("file", name), zap.Int64("bytes", n))
		result.Downloaded = append(result.Downloaded, name)
		result.Bytes += n
	}

	log.Info("crawl complete",
		zap.Int("downloaded", len(result.Downloaded)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("ignored", len(result.Ignored)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
