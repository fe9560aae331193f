// Package period models the year-month competency period that portal files
// are published under.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Layout is the canonical string form of a Period.
const Layout = "2006-01"

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// New returns the period for the given year and month.
func New(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// Of returns the period containing t.
func Of(t time.Time) Period {
	return New(t.Year(), t.Month())
}

// Parse reads a period in the strict "YYYY-MM" form.
func Parse(s string) (Period, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Period{}, eris.Wrapf(err, "period: parse %q", s)
	}
	return Of(t), nil
}

// FromFileName extracts the period from a name ending in "_<MM>_<YYYY>.csv".
// The last two underscore-separated tokens are read as month and year; the
// second reports false when they do not form a valid month.
func FromFileName(name string) (Period, bool) {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return Period{}, false
	}
	monthTok := parts[len(parts)-2]
	yearTok := strings.TrimSuffix(parts[len(parts)-1], ".csv")

	if len(monthTok) < 1 || len(monthTok) > 2 || len(yearTok) != 4 {
		return Period{}, false
	}
	month, err := strconv.Atoi(monthTok)
	if err != nil || !isDigits(monthTok) || month < 1 || month > 12 {
		return Period{}, false
	}
	year, err := strconv.Atoi(yearTok)
	if err != nil || !isDigits(yearTok) || year < 1 {
		return Period{}, false
	}
	return New(year, time.Month(month)), true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String formats the period as "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts the period by n calendar months.
func (p Period) AddMonths(n int) Period {
	return Of(p.Start().AddDate(0, n, 0))
}

// Before reports whether p is earlier than q.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	return p.Month < q.Month
}

// Compare returns -1, 0 or +1 as p is before, equal to or after q.
func (p Period) Compare(q Period) int {
	switch {
	case p.Before(q):
		return -1
	case q.Before(p):
		return 1
	default:
		return 0
	}
}

// WindowStart returns the earliest period inside a trailing window of the
// given number of months ending at now. A row belongs to the window when its
// period is not before the returned value.
func WindowStart(now time.Time, months int) Period {
	return Of(now).AddMonths(-months)
}
