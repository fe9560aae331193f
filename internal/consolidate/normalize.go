package consolidate

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/portal-etl/internal/period"
	"github.com/sells-group/portal-etl/internal/table"
)

// NullPolicy decides what happens to rows whose period is null.
type NullPolicy string

const (
	// NullDrop removes rows with a null period.
	NullDrop NullPolicy = "drop"
	// NullFail rejects the whole table.
	NullFail NullPolicy = "fail"
	// NullKeep keeps the rows with an empty period.
	NullKeep NullPolicy = "keep"
)

// ParseNullPolicy validates a policy name.
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch p := NullPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case NullDrop, NullFail, NullKeep:
		return p, nil
	case "":
		return NullDrop, nil
	default:
		return "", eris.Errorf("consolidate: unknown null period policy %q", s)
	}
}

// ErrNullPeriod is returned under NullFail when a row has no period.
var ErrNullPeriod = eris.New("consolidate: null period")

// NormalizePeriods reparses the period column strictly as YYYY-MM and
// rewrites it in canonical form. It returns the table holding the surviving
// rows and the number of rows dropped for a null period. A non-null value
// that does not parse is always an error.
func NormalizePeriods(t *table.Table, policy NullPolicy) (*table.Table, int, error) {
	idx := t.Index(ColPeriod)
	if idx < 0 {
		return nil, 0, eris.Errorf("consolidate: column %q missing", ColPeriod)
	}

	out := &table.Table{Columns: append([]table.Column(nil), t.Columns...)}
	out.Columns[idx].Kind = table.Text

	dropped := 0
	for i, row := range t.Rows {
		c := row[idx]
		if !c.Valid || strings.TrimSpace(c.Value) == "" {
			switch policy {
			case NullKeep:
				row[idx] = table.Null
				out.Rows = append(out.Rows, row)
			case NullFail:
				return nil, 0, eris.Wrapf(ErrNullPeriod, "row %d", i)
			default:
				dropped++
			}
			continue
		}
		p, err := period.Parse(strings.TrimSpace(c.Value))
		if err != nil {
			return nil, 0, eris.Wrapf(err, "consolidate: row %d", i)
		}
		row[idx] = table.Str(p.String())
		out.Rows = append(out.Rows, row)
	}
	return out, dropped, nil
}
