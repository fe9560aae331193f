// Package pipeline runs the fetch, aggregate and window stages in order and
// records each stage in the run ledger.
package pipeline

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/consolidate"
	"github.com/sells-group/portal-etl/internal/crawl"
	"github.com/sells-group/portal-etl/internal/runlog"
	"github.com/sells-group/portal-etl/internal/window"
)

// ErrAllStagesFailed is returned when a run attempted stages and none of
// them succeeded.
var ErrAllStagesFailed = eris.New("pipeline: all stages failed")

// Crawler downloads new files from the portal listing.
type Crawler interface {
	Run(ctx context.Context, listingURL string) (*crawl.Result, error)
}

// Ledger records stage runs.
type Ledger interface {
	Start(ctx context.Context, runID, stage, subject string) (int64, error)
	Complete(ctx context.Context, id int64, result *runlog.Result) error
	Fail(ctx context.Context, id int64, errMsg string) error
}

// Category is one consolidated output and its trailing window.
type Category struct {
	Filter       string
	Prefix       string
	WindowPrefix string
}

// Matches reports whether name selects this category by filter or by
// either prefix.
func (c Category) Matches(name string) bool {
	return name == c.Filter || name == c.Prefix || name == c.WindowPrefix ||
		name == strings.TrimSuffix(c.Filter, "_")
}

// Options configures an Engine.
type Options struct {
	ListingURL string
	Dir        string
	Categories []Category
	Months     int
	NullPolicy consolidate.NullPolicy
}

// RunOpts selects what a single run does.
type RunOpts struct {
	// Now is the run time stamped on rows and used for the window; zero
	// means the current time.
	Now       time.Time
	SkipFetch bool
	// Categories restricts the run to the named categories.
	Categories []string
	// Stages restricts the run to the named stages; empty means all.
	Stages []string
}

// StageResult is the outcome of one stage for one subject.
type StageResult struct {
	Stage   string
	Subject string
	Rows    int
	Files   int
	Empty   bool
	Err     error
}

// Summary collects every stage outcome of a run.
type Summary struct {
	RunID     string
	Now       time.Time
	Stages    []StageResult
	Succeeded int
	Failed    int
}

// Engine orchestrates pipeline runs.
type Engine struct {
	crawler Crawler
	ledger  Ledger
	opts    Options
}

// NewEngine creates a new Engine. A nil ledger records nothing.
func NewEngine(c Crawler, ledger Ledger, opts Options) *Engine {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if opts.Months < 1 {
		opts.Months = window.DefaultMonths
	}
	if opts.NullPolicy == "" {
		opts.NullPolicy = consolidate.NullDrop
	}
	return &Engine{crawler: c, ledger: ledger, opts: opts}
}

// OutputNames lists every file the engine writes into its directory as CSV.
// These are never loaded back as sources.
func (e *Engine) OutputNames() []string {
	var names []string
	for _, c := range e.opts.Categories {
		names = append(names,
			consolidate.OutputName(c.Prefix),
			window.OutputName(c.WindowPrefix, e.opts.Months),
		)
	}
	return names
}

func (e *Engine) selectCategories(names []string) ([]Category, error) {
	if len(names) == 0 {
		return e.opts.Categories, nil
	}
	var out []Category
	for _, name := range names {
		idx := slices.IndexFunc(e.opts.Categories, func(c Category) bool { return c.Matches(name) })
		if idx < 0 {
			return nil, eris.Errorf("pipeline: unknown category %q", name)
		}
		if !slices.Contains(out, e.opts.Categories[idx]) {
			out = append(out, e.opts.Categories[idx])
		}
	}
	return out, nil
}

func wants(opts RunOpts, stage string) bool {
	if stage == runlog.StageFetch && opts.SkipFetch {
		return false
	}
	return len(opts.Stages) == 0 || slices.Contains(opts.Stages, stage)
}

// Run executes fetch, then aggregate for every selected category, then
// window for every selected category. A stage failure is logged, recorded
// and counted; it never stops the remaining stages. Cancellation stops the
// run between stages.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*Summary, error) {
	log := zap.L().With(zap.String("component", "pipeline.engine"))

	cats, err := e.selectCategories(opts.Categories)
	if err != nil {
		return nil, err
	}
	for _, s := range opts.Stages {
		if s != runlog.StageFetch && s != runlog.StageAggregate && s != runlog.StageWindow {
			return nil, eris.Errorf("pipeline: unknown stage %q", s)
		}
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	clock := func() time.Time { return now }

	sum := &Summary{RunID: runlog.NewRunID(), Now: now}
	log = log.With(zap.String("run_id", sum.RunID))
	log.Info("run started",
		zap.Time("as_of", now),
		zap.Int("categories", len(cats)),
		zap.Bool("fetch", wants(opts, runlog.StageFetch)),
	)

	if wants(opts, runlog.StageFetch) {
		e.stage(ctx, sum, runlog.StageFetch, e.opts.ListingURL, e.fetch)
	}

	if wants(opts, runlog.StageAggregate) {
		agg := consolidate.NewAggregator(
			consolidate.NewLoader(e.opts.Dir, e.OutputNames()...),
			e.opts.NullPolicy,
			clock,
		)
		for _, cat := range cats {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			e.stage(ctx, sum, runlog.StageAggregate, cat.Filter, func(ctx context.Context) (StageResult, *runlog.Result, error) {
				return aggregate(ctx, agg, cat)
			})
		}
	}

	if wants(opts, runlog.StageWindow) {
		w := window.New(e.opts.Dir, e.opts.Months, clock)
		for _, cat := range cats {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			e.stage(ctx, sum, runlog.StageWindow, cat.WindowPrefix, func(ctx context.Context) (StageResult, *runlog.Result, error) {
				return windowStage(ctx, w, cat)
			})
		}
	}

	log.Info("run complete",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
	)
	if sum.Failed > 0 && sum.Succeeded == 0 {
		return sum, ErrAllStagesFailed
	}
	return sum, ctx.Err()
}

type stageFunc func(ctx context.Context) (StageResult, *runlog.Result, error)

// stage runs fn and records it in the ledger and the summary.
func (e *Engine) stage(ctx context.Context, sum *Summary, name, subject string, fn stageFunc) {
	log := zap.L().With(
		zap.String("component", "pipeline.engine"),
		zap.String("run_id", sum.RunID),
		zap.String("stage", name),
		zap.String("subject", subject),
	)

	entryID, ledgerErr := e.ledger.Start(ctx, sum.RunID, name, subject)
	if ledgerErr != nil {
		log.Error("failed to record stage start", zap.Error(ledgerErr))
	}

	start := time.Now()
	res, record, err := fn(ctx)
	elapsed := time.Since(start)
	res.Stage, res.Subject, res.Err = name, subject, err

	if err != nil {
		log.Error("stage failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		if ledgerErr == nil {
			if logErr := e.ledger.Fail(ctx, entryID, err.Error()); logErr != nil {
				log.Error("failed to record stage failure", zap.Error(logErr))
			}
		}
		sum.Failed++
	} else {
		log.Info("stage complete",
			zap.Int("rows", res.Rows),
			zap.Int("files", res.Files),
			zap.Bool("empty", res.Empty),
			zap.Duration("elapsed", elapsed),
		)
		if ledgerErr == nil {
			if logErr := e.ledger.Complete(ctx, entryID, record); logErr != nil {
				log.Error("failed to record stage completion", zap.Error(logErr))
			}
		}
		sum.Succeeded++
	}
	sum.Stages = append(sum.Stages, res)
}

func (e *Engine) fetch(ctx context.Context) (StageResult, *runlog.Result, error) {
	if e.crawler == nil {
		return StageResult{}, nil, eris.New("pipeline: no crawler configured")
	}
	res, err := e.crawler.Run(ctx, e.opts.ListingURL)
	if err != nil {
		return StageResult{}, nil, err
	}
	return StageResult{Files: len(res.Downloaded)}, &runlog.Result{
		Files: len(res.Downloaded),
		Metadata: map[string]any{
			"bytes":   res.Bytes,
			"skipped": len(res.Skipped),
			"ignored": len(res.Ignored),
			"failed":  res.Failed,
		},
	}, nil
}

func aggregate(ctx context.Context, agg *consolidate.Aggregator, cat Category) (StageResult, *runlog.Result, error) {
	res, err := agg.Aggregate(ctx, consolidate.Category{Filter: cat.Filter, Prefix: cat.Prefix})
	if err != nil {
		return StageResult{}, nil, err
	}
	meta := map[string]any{
		"prefix":  cat.Prefix,
		"failed":  res.Failed,
		"dropped": res.Dropped,
		"empty":   res.Empty(),
	}
	if res.Outputs != nil && res.Outputs.ParquetErr != nil {
		meta["parquet_error"] = res.Outputs.ParquetErr.Error()
	}
	return StageResult{Rows: res.Rows, Files: len(res.Files), Empty: res.Empty()}, &runlog.Result{
		Rows:     int64(res.Rows),
		Files:    len(res.Files),
		Metadata: meta,
	}, nil
}

func windowStage(ctx context.Context, w *window.Windower, cat Category) (StageResult, *runlog.Result, error) {
	res, err := w.Window(ctx, consolidate.OutputName(cat.Prefix), cat.WindowPrefix)
	if err != nil {
		return StageResult{}, nil, err
	}
	meta := map[string]any{
		"source": res.Source,
		"start":  res.Start.String(),
		"read":   res.Read,
		"empty":  res.Empty(),
	}
	if res.Outputs != nil && res.Outputs.ParquetErr != nil {
		meta["parquet_error"] = res.Outputs.ParquetErr.Error()
	}
	return StageResult{Rows: res.Kept, Empty: res.Empty()}, &runlog.Result{
		Rows:     int64(res.Kept),
		Metadata: meta,
	}, nil
}

type nopLedger struct{}

func (nopLedger) Start(context.Context, string, string, string) (int64, error) { return 0, nil }
func (nopLedger) Complete(context.Context, int64, *runlog.Result) error      { return nil }
func (nopLedger) Fail(context.Context, int64, string) error                  { return nil }
