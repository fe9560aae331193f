// Package consolidate loads the downloaded portal files of one category,
// stacks them in chronological order and persists the result.
package consolidate

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/period"
	"github.com/sells-group/portal-etl/internal/table"
)

// Provenance columns added to every loaded table.
const (
	ColDownload = "data_download"
	ColPeriod   = "data_competencia"
	ColSource   = "fonte"
)

// DateLayout formats the run date in the data_download column.
const DateLayout = "2006-01-02"

// SourceFile is a local file selected for loading.
type SourceFile struct {
	Name   string
	Period period.Period
	// HasPeriod is false when the name carries no valid period.
	HasPeriod bool
}

// LoadedFile records how a source file was parsed.
type LoadedFile struct {
	SourceFile
	Config table.ReadOptions
	Rows   int
}

// LoadResult is the outcome of loading one category.
type LoadResult struct {
	Tables []*table.Table
	Files  []LoadedFile
	Failed []string
}

// Failures returns the number of files no parser configuration could read.
func (r *LoadResult) Failures() int {
	return len(r.Failed)
}

// Loader reads the source files of a category from a directory.
type Loader struct {
	Dir string
	// Configs are tried in order for each file.
	Configs []table.ReadOptions
	// Skip lists file names never loaded, such as the pipeline's outputs.
	Skip []string
}

// NewLoader returns a Loader over dir using the portal parser configurations.
func NewLoader(dir string, skip ...string) *Loader {
	return &Loader{Dir: dir, Configs: table.PortalConfigs(), Skip: skip}
}

// Sources lists the .csv files in the directory whose names contain filter,
// sorted by period. Files without a valid period come first; ties keep name
// order.
func (l *Loader) Sources(filter string) ([]SourceFile, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "consolidate: list %s", l.Dir)
	}

	var files []SourceFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") || !strings.Contains(name, filter) {
			continue
		}
		if slices.Contains(l.Skip, name) {
			continue
		}
		p, ok := period.FromFileName(name)
		files = append(files, SourceFile{Name: name, Period: p, HasPeriod: ok})
	}

	slices.SortStableFunc(files, func(a, b SourceFile) int {
		switch {
		case !a.HasPeriod && !b.HasPeriod:
			return 0
		case !a.HasPeriod:
			return -1
		case !b.HasPeriod:
			return 1
		}
		return a.Period.Compare(b.Period)
	})
	return files, nil
}

// Load parses every source file matching filter and annotates each table
// with the run date, the file's period and the file name. Files that no
// configuration can parse are logged and counted; they never fail the load.
func (l *Loader) Load(ctx context.Context, filter string, now time.Time) (*LoadResult, error) {
	log := zap.L().With(zap.String("component", "loader"), zap.String("filter", filter))

	files, err := l.Sources(filter)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{}
	downloaded := table.Str(now.Format(DateLayout))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, cfg, err := table.ReadFile(l.path(f.Name), l.Configs)
		if err != nil {
			log.Error("file unprocessable", zap.String("file", f.Name), zap.Error(err))
			result.Failed = append(result.Failed, f.Name)
			continue
		}

		competencia := table.Null
		if f.HasPeriod {
			competencia = table.Str(f.Period.String())
		}
		t.Set(ColDownload, downloaded)
		t.Set(ColPeriod, competencia)
		t.Set(ColSource, table.Str(f.Name))
		t.TrimText()

		log.Info("file loaded",
			zap.String("file", f.Name),
			zap.String("encoding", cfg.Encoding.Name),
			zap.Int("rows", t.Len()),
		)
		result.Tables = append(result.Tables, t)
		result.Files = append(result.Files, LoadedFile{SourceFile: f, Config: cfg, Rows: t.Len()})
	}
	return result, nil
}

func (l *Loader) path(name string) string {
	return filepath.Join(l.Dir, name)
}
