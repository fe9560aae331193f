// Package window extracts the trailing months of a persisted aggregate.
package window

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/consolidate"
	"github.com/sells-group/portal-etl/internal/period"
	"github.com/sells-group/portal-etl/internal/table"
)

// DefaultMonths is the window length used when none is configured.
const DefaultMonths = 3

// BaseName returns the output base name for a window of the given length,
// "<prefix>_últimos_<months>_meses".
func BaseName(prefix string, months int) string {
	return fmt.Sprintf("%s_últimos_%d_meses", prefix, months)
}

// OutputName returns the CSV file name of a window output.
func OutputName(prefix string, months int) string {
	return BaseName(prefix, months) + ".csv"
}

// Result summarizes one window extract.
type Result struct {
	Source string
	// Start is the earliest period kept.
	Start period.Period
	Read  int
	Kept  int
	// Outputs is nil when no row fell inside the window.
	Outputs *consolidate.Outputs
}

// Empty reports whether nothing was written.
func (r *Result) Empty() bool {
	return r.Outputs == nil
}

// Windower cuts trailing-window extracts out of aggregates in Dir.
type Windower struct {
	dir    string
	months int
	now    func() time.Time
}

// New creates a Windower. months below 1 means DefaultMonths; nil now means
// time.Now.
func New(dir string, months int, now func() time.Time) *Windower {
	if months < 1 {
		months = DefaultMonths
	}
	if now == nil {
		now = time.Now
	}
	return &Windower{dir: dir, months: months, now: now}
}

// Months returns the window length.
func (w *Windower) Months() int {
	return w.months
}

// Window reloads <dir>/<source>, keeps the rows whose period is on or after
// the window start and writes them under BaseName(prefix). Rows without a
// period are outside every window. A source that cannot be read, or a period
// that does not parse, fails the call without writing anything.
func (w *Windower) Window(ctx context.Context, source, prefix string) (*Result, error) {
	log := zap.L().With(zap.String("component", "windower"), zap.String("source", source))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, _, err := table.ReadFile(filepath.Join(w.dir, source), []table.ReadOptions{table.CSVConfig()})
	if err != nil {
		return nil, eris.Wrapf(err, "window: load %s", source)
	}
	idx := t.Index(consolidate.ColPeriod)
	if idx < 0 {
		return nil, eris.Errorf("window: %s has no %q column", source, consolidate.ColPeriod)
	}

	start := period.WindowStart(w.now(), w.months)
	result := &Result{Source: source, Start: start, Read: t.Len()}

	var parseErr error
	kept := t.Filter(func(row []table.Cell) bool {
		c := row[idx]
		if parseErr != nil || !c.Valid || strings.TrimSpace(c.Value) == "" {
			return false
		}
		p, err := period.Parse(strings.TrimSpace(c.Value))
		if err != nil {
			parseErr = err
			return false
		}
		return !p.Before(start)
	})
	if parseErr != nil {
		return nil, eris.Wrapf(parseErr, "window: %s", source)
	}

	kept.TrimText()
	kept, _, err = consolidate.NormalizePeriods(kept, consolidate.NullDrop)
	if err != nil {
		return nil, eris.Wrapf(err, "window: normalize %s", source)
	}
	result.Kept = kept.Len()

	if kept.Len() == 0 {
		log.Warn("no rows inside window", zap.String("start", start.String()))
		return result, nil
	}

	outputs, err := consolidate.Persist(w.dir, BaseName(prefix, w.months), kept)
	if err != nil {
		return nil, eris.Wrap(err, "window: persist")
	}
	result.Outputs = outputs

	log.Info("window written",
		zap.String("start", start.String()),
		zap.Int("read", result.Read),
		zap.Int("kept", result.Kept),
		zap.String("csv", outputs.CSV),
	)
	return result, nil
}
