package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFileName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"horarios_01_2024.csv", "2024-01", true},
		{"horarios_regulares_12_2023.csv", "2023-12", true},
		{"linhas_secoes_5_2024.csv", "2024-05", true},
		{"empresas_linhas_secoes_09_2021.csv", "2021-09", true},
		{"horarios_13_2024.csv", "", false},
		{"horarios_00_2024.csv", "", false},
		{"horarios_ab_2024.csv", "", false},
		{"horarios_01_24.csv", "", false},
		{"horarios_01_2024x.csv", "", false},
		{"horarios.csv", "", false},
		{"todos_horarios_ordenados.csv", "", false},
		{"2024.csv", "", false},
		{"horarios_+1_2024.csv", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := FromFileName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, p.String())
			}
		})
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("2024-03")
	require.NoError(t, err)
	assert.Equal(t, New(2024, time.March), p)

	for _, bad := range []string{"", "2024-3", "2024-13", "03-2024", "2024-03-01", "abc"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestOrdering(t *testing.T) {
	a := New(2023, time.December)
	b := New(2024, time.January)
	c := New(2024, time.February)

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.Equal(t, -1, a.Compare(c))
	assert.Equal(t, 1, c.Compare(b))
	assert.Equal(t, 0, b.Compare(New(2024, time.January)))
}

func TestAddMonths(t *testing.T) {
	assert.Equal(t, New(2023, time.November), New(2024, time.February).AddMonths(-3))
	assert.Equal(t, New(2025, time.January), New(2024, time.December).AddMonths(1))
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), New(2024, time.March).Start())
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2024, time.June, 15, 10, 30, 0, 0, time.UTC)
	start := WindowStart(now, 3)
	assert.Equal(t, New(2024, time.March), start)

	var kept []string
	for m := time.January; m <= time.June; m++ {
		p := New(2024, m)
		if !p.Before(start) {
			kept = append(kept, p.String())
		}
	}
	assert.Equal(t, []string{"2024-03", "2024-04", "2024-05", "2024-06"}, kept)
}

func TestWindowStart_EndOfMonth(t *testing.T) {
	// May 31 minus three months must land in February, not roll into March.
	now := time.Date(2024, time.May, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, New(2024, time.February), WindowStart(now, 3))
}
