package table

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteParquet(t *testing.T) {
	tb := New("linha", "qtd", "km", "fonte")
	tb.Columns[1].Kind = Int
	tb.Columns[2].Kind = Float
	tb.Append(Str("SP-RJ"), Str("3"), Str("430.5"), Str("horarios_01_2024.csv"))
	tb.Append(Str("BH-SP"), Null, Str("586"), Str("horarios_02_2024.csv"))
	tb.Append(Null, Str("7"), Null, Str("horarios_02_2024.csv"))

	var buf bytes.Buffer
	require.NoError(t, tb.WriteParquet(&buf))

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.NumRows())

	for _, name := range tb.Names() {
		_, ok := f.Schema().Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestWriteParquet_BadNumber(t *testing.T) {
	tb := New("qtd")
	tb.Columns[0].Kind = Int
	tb.Append(Str("abc"))

	var buf bytes.Buffer
	err := tb.WriteParquet(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qtd")
}

func TestWriteParquet_NoRows(t *testing.T) {
	tb := New("a", "b")
	var buf bytes.Buffer
	require.NoError(t, tb.WriteParquet(&buf))
	assert.Positive(t, buf.Len())
}
