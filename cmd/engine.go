package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/portal-etl/internal/config"
	"github.com/sells-group/portal-etl/internal/consolidate"
	"github.com/sells-group/portal-etl/internal/crawl"
	"github.com/sells-group/portal-etl/internal/fetcher"
	"github.com/sells-group/portal-etl/internal/pipeline"
	"github.com/sells-group/portal-etl/internal/runlog"
)

// initLedger opens the run ledger configured in store.path.
func initLedger(ctx context.Context, c *config.Config) (*runlog.Store, error) {
	st, err := runlog.Open(ctx, c.Store.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "open run ledger %s", c.Store.Path)
	}
	return st, nil
}

// buildEngine wires the fetcher, crawler and ledger from configuration.
func buildEngine(c *config.Config, ledger pipeline.Ledger) (*pipeline.Engine, error) {
	policy, err := consolidate.ParseNullPolicy(c.Window.NullPeriod)
	if err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.Portal.UserAgent,
		Timeout:     time.Duration(c.Portal.TimeoutSecs) * time.Second,
		PerHostRate: rate.Limit(c.Portal.RateLimit),
	})
	rules := crawl.Rules{
		Suffix:  c.Portal.Suffix,
		Include: c.Portal.Include,
		Exclude: c.Portal.Exclude,
	}

	cats := make([]pipeline.Category, 0, len(c.Categories))
	for _, cc := range c.Categories {
		cats = append(cats, pipeline.Category{
			Filter:       cc.Filter,
			Prefix:       cc.Prefix,
			WindowPrefix: cc.WindowPrefix,
		})
	}

	return pipeline.NewEngine(crawl.New(f, rules, c.Portal.TargetDir), ledger, pipeline.Options{
		ListingURL: c.Portal.ListingURL,
		Dir:        c.Portal.TargetDir,
		Categories: cats,
		Months:     c.Window.Months,
		NullPolicy: policy,
	}), nil
}
