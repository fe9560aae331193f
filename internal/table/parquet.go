package table

import (
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
)

// parquetNode maps a column kind to an optional parquet leaf.
func parquetNode(k Kind) parquet.Node {
	switch k {
	case Int:
		return parquet.Optional(parquet.Int(64))
	case Float:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// Schema returns the parquet schema for t. Every column is optional.
func (t *Table) Schema() *parquet.Schema {
	group := make(parquet.Group, len(t.Columns))
	for _, c := range t.Columns {
		group[c.Name] = parquetNode(c.Kind)
	}
	return parquet.NewSchema("table", group)
}

// WriteParquet writes t as a snappy-compressed parquet file.
func (t *Table) WriteParquet(w io.Writer) error {
	schema := t.Schema()

	// Group fields are laid out by name; map each table column to its leaf.
	leaves := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		leaf, ok := schema.Lookup(c.Name)
		if !ok {
			return eris.Errorf("table: parquet column %q missing from schema", c.Name)
		}
		leaves[i] = leaf.ColumnIndex
	}

	pw := parquet.NewWriter(w, schema, parquet.Compression(&parquet.Snappy))

	const batchSize = 1024
	batch := make([]parquet.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return eris.Wrap(err, "table: write parquet rows")
		}
		batch = batch[:0]
		return nil
	}

	for ri, row := range t.Rows {
		out := make(parquet.Row, len(t.Columns))
		for i, cell := range row {
			v, err := parquetValue(t.Columns[i].Kind, cell)
			if err != nil {
				return eris.Wrapf(err, "table: row %d column %q", ri, t.Columns[i].Name)
			}
			col := leaves[i]
			if cell.Valid {
				out[col] = v.Level(0, 1, col)
			} else {
				out[col] = v.Level(0, 0, col)
			}
		}
		batch = append(batch, out)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	return eris.Wrap(pw.Close(), "table: close parquet writer")
}

func parquetValue(k Kind, c Cell) (parquet.Value, error) {
	if !c.Valid {
		return parquet.NullValue(), nil
	}
	switch k {
	case Int:
		n, err := strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64)
		if err != nil {
			return parquet.Value{}, eris.Wrap(err, "parse int")
		}
		return parquet.Int64Value(n), nil
	case Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err != nil {
			return parquet.Value{}, eris.Wrap(err, "parse float")
		}
		return parquet.DoubleValue(f), nil
	default:
		return parquet.ByteArrayValue([]byte(c.Value)), nil
	}
}
