package consolidate

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/table"
)

// Category selects the source files of one consolidated output.
type Category struct {
	// Filter is the substring source file names must contain.
	Filter string
	// Prefix names the output files.
	Prefix string
}

// OutputName returns the CSV file name an aggregate with this prefix is
// written to.
func OutputName(prefix string) string {
	return prefix + ".csv"
}

// AggregateResult summarizes one category's aggregation.
type AggregateResult struct {
	Category Category
	Files    []LoadedFile
	Failed   []string
	Rows     int
	// Dropped counts rows removed for a null period.
	Dropped int
	// Outputs is nil when nothing was written.
	Outputs *Outputs
}

// Empty reports whether no table was loaded and nothing was written.
func (r *AggregateResult) Empty() bool {
	return r.Outputs == nil
}

// Aggregator stacks a category's files and persists the result.
type Aggregator struct {
	loader *Loader
	policy NullPolicy
	now    func() time.Time
}

// NewAggregator creates an Aggregator. now supplies the run time stamped on
// every row; nil means time.Now.
func NewAggregator(loader *Loader, policy NullPolicy, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if policy == "" {
		policy = NullDrop
	}
	return &Aggregator{loader: loader, policy: policy, now: now}
}

// Aggregate loads every file of the category in period order, concatenates
// them and writes <prefix>.csv and <prefix>.parquet to the loader's
// directory. When no file loads, nothing is written and the result is empty.
func (a *Aggregator) Aggregate(ctx context.Context, cat Category) (*AggregateResult, error) {
	log := zap.L().With(
		zap.String("component", "aggregator"),
		zap.String("filter", cat.Filter),
		zap.String("prefix", cat.Prefix),
	)

	// Never read back this category's own output.
	loader := *a.loader
	loader.Skip = append(append([]string(nil), a.loader.Skip...), OutputName(cat.Prefix))

	loaded, err := loader.Load(ctx, cat.Filter, a.now())
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: load %s", cat.Filter)
	}

	result := &AggregateResult{Category: cat, Files: loaded.Files, Failed: loaded.Failed}
	if len(loaded.Tables) == 0 {
		log.Warn("nothing to concatenate", zap.Int("failed", loaded.Failures()))
		return result, nil
	}

	combined := table.Concat(loaded.Tables...)
	normalized, dropped, err := NormalizePeriods(combined, a.policy)
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: normalize %s", cat.Prefix)
	}
	if dropped > 0 {
		log.Warn("rows without period dropped", zap.Int("dropped", dropped))
	}
	result.Rows = normalized.Len()
	result.Dropped = dropped

	outputs, err := Persist(loader.Dir, cat.Prefix, normalized)
	if err != nil {
		return nil, err
	}
	result.Outputs = outputs

	log.Info("aggregate written",
		zap.Int("files", len(loaded.Files)),
		zap.Int("failed", loaded.Failures()),
		zap.Int("rows", result.Rows),
		zap.String("csv", outputs.CSV),
		zap.Bool("parquet", outputs.ParquetErr == nil),
	)
	return result, nil
}
