package consolidate

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/portal-etl/internal/table"
)

// Outputs names the files written for one table.
type Outputs struct {
	CSV     string
	Parquet string
	// ParquetErr is set when the parquet file could not be written. The CSV
	// file is kept in that case.
	ParquetErr error
}

// Persist writes t to <dir>/<base>.csv and then <dir>/<base>.parquet. A CSV
// failure is returned. A parquet failure is logged, the partial file removed
// and the error reported in Outputs.
func Persist(dir, base string, t *table.Table) (*Outputs, error) {
	out := &Outputs{
		CSV:     filepath.Join(dir, base+".csv"),
		Parquet: filepath.Join(dir, base+".parquet"),
	}

	if err := writeFile(out.CSV, t.WriteCSV); err != nil {
		return nil, eris.Wrapf(err, "consolidate: write %s", out.CSV)
	}

	if err := writeFile(out.Parquet, t.WriteParquet); err != nil {
		zap.L().Warn("parquet write failed, keeping csv",
			zap.String("file", out.Parquet),
			zap.Error(err),
		)
		out.ParquetErr = err
		out.Parquet = ""
	}
	return out, nil
}

// writeFile creates path and fills it with write. On failure the file is
// removed.
func writeFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "close")
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return write(f)
}
