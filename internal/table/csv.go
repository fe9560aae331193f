package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
)

// ReadOptions is one parser configuration: a text encoding and a field
// delimiter.
type ReadOptions struct {
	Encoding   Encoding
	Delimiter  rune // default ','
	LazyQuotes bool
}

// String identifies the configuration in logs.
func (o ReadOptions) String() string {
	return fmt.Sprintf("%s/%q", o.Encoding.Name, o.delimiter())
}

func (o ReadOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

// PortalConfigs returns the configurations portal source files are tried
// with: every default encoding, semicolon-delimited. Quotes are lazy, so a
// stray quote inside an unquoted field is kept as text; a row longer than
// the header still rejects the configuration.
func PortalConfigs() []ReadOptions {
	encs := DefaultEncodings()
	out := make([]ReadOptions, 0, len(encs))
	for _, enc := range encs {
		out = append(out, ReadOptions{Encoding: enc, Delimiter: ';', LazyQuotes: true})
	}
	return out
}

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = eris.New("table: no columns to parse")

// Read decodes and parses delimited text. The first record is the header.
// Empty fields are null, blank lines are skipped, short rows are padded with
// nulls and a row longer than the header is a structural error.
func Read(data []byte, opts ReadOptions) (*Table, error) {
	enc := opts.Encoding
	if enc.decoder == nil {
		enc = UTF8
	}
	text, err := enc.Decode(data)
	if err != nil {
		return nil, err
	}
	text = strings.TrimPrefix(text, "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = opts.delimiter()
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "table: read header")
	}

	t := New(headerNames(header)...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "table: read row")
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, eris.Errorf("table: line %d: expected %d fields, saw %d", line, len(header), len(record))
		}
		row := make([]Cell, len(header))
		for i, field := range record {
			if field != "" {
				row[i] = Str(field)
			}
		}
		t.Append(row...)
	}

	t.InferKinds()
	return t, nil
}

// headerNames fills blank names and disambiguates repeated ones.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		if strings.TrimSpace(name) == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for seen[name] > 0 {
			name = base + "." + strconv.Itoa(seen[base])
			seen[base]++
		}
		seen[name]++
		names[i] = name
	}
	return names
}

// ReadFirst tries each configuration in order and returns the first table
// that parses, along with the configuration that produced it. When every
// configuration fails the returned error carries each attempt's failure.
func ReadFirst(data []byte, configs []ReadOptions) (*Table, ReadOptions, error) {
	var errs error
	for _, opts := range configs {
		t, err := Read(data, opts)
		if err == nil {
			return t, opts, nil
		}
		errs = multierr.Append(errs, eris.Wrapf(err, "config %s", opts))
	}
	if errs == nil {
		errs = eris.New("table: no parser configurations given")
	}
	return nil, ReadOptions{}, errs
}

// ReadFile reads path and parses it with ReadFirst.
func ReadFile(path string, configs []ReadOptions) (*Table, ReadOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ReadOptions{}, eris.Wrapf(err, "table: read %s", path)
	}
	return ReadFirst(data, configs)
}

// WriteCSV writes t as comma-delimited UTF-8 text with a header row. Nulls
// are written as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return eris.Wrap(err, "table: write header")
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range row {
			record[i] = c.Value
			if !c.Valid {
				record[i] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "table: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "table: flush csv")
}

// CSVConfig is the configuration WriteCSV output is read back with.
func CSVConfig() ReadOptions {
	return ReadOptions{Encoding: UTF8, Delimiter: ','}
}
