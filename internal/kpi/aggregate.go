package kpi

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Debt columns of the recupero detail table.
const (
	ColDebtTotal      = "DEUDA_TOTAL"
	ColDebtOverdue    = "DEUDA_VENCIDA"
	ColDebtNotOverdue = "DEUDA_NO_VENCIDA"
	ColDebtPrescribed = "DEUDA_PRESCRIPTA"
)

// Debt is the roll-up of a debt detail table.
type Debt struct {
	Total      float64 `json:"total"`
	Overdue    float64 `json:"overdue"`
	NotOverdue float64 `json:"notOverdue"`
	Prescribed float64 `json:"prescribed"`
}

// Sum adds a numeric column with null → 0.
func Sum(t *table.Table, column string) (float64, error) {
	c, err := t.Require(column)
	if err != nil {
		return 0, err
	}
	var s float64
	for i := 0; i < t.NumRows(); i++ {
		if f, ok := c.Float(i); ok {
			s += f
		}
	}
	return s, nil
}

// Debts sums the four debt columns. A missing column sums to 0 and is
// reported in the joined error.
func Debts(t *table.Table) (Debt, error) {
	var d Debt
	var errs []error
	for _, x := range []struct {
		col string
		dst *float64
	}{
		{ColDebtTotal, &d.Total},
		{ColDebtOverdue, &d.Overdue},
		{ColDebtNotOverdue, &d.NotOverdue},
		{ColDebtPrescribed, &d.Prescribed},
	} {
		v, err := Sum(t, x.col)
		if err != nil {
			errs = append(errs, err)
		}
		*x.dst = v
	}
	return d, errors.Join(errs...)
}

// WallClock returns now as the wall-clock reading in loc, expressed in UTC.
// Source timestamps carry no zone and are decoded as UTC wall-clock, so this
// is the reading comparable with them.
func WallClock(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// Last24h counts rows whose date is at or after now minus one day.
func Last24h(t *table.Table, column string, now time.Time) (int, error) {
	c, err := t.Require(column)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-24 * time.Hour)
	n := 0
	for i := 0; i < t.NumRows(); i++ {
		if ts, ok := c.Time(i); ok && !ts.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// Point is one month of a series.
type Point struct {
	Month time.Time `json:"month"`
	Count int       `json:"count"`
}

// Monthly groups rows by the month of column, oldest first. Months without
// rows are absent.
func Monthly(t *table.Table, column string) ([]Point, error) {
	c, err := t.Require(column)
	if err != nil {
		return nil, err
	}
	counts := map[time.Time]int{}
	for i := 0; i < t.NumRows(); i++ {
		ts, ok := c.Time(i)
		if !ok {
			continue
		}
		ts = ts.UTC()
		counts[time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)]++
	}
	out := make([]Point, 0, len(counts))
	for m, n := range counts {
		out = append(out, Point{Month: m, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// SeriesTable renders a monthly series as a MES/CANTIDAD table.
func SeriesTable(points []Point) *table.Table {
	months := make([]time.Time, len(points))
	counts := make([]int64, len(points))
	for i, p := range points {
		months[i] = p.Month
		counts[i] = int64(p.Count)
	}
	return table.MustNew(table.Times("MES", months...), table.Ints("CANTIDAD", counts...))
}

// Group is one value of a grouping column with its row count.
type Group struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CountBy counts rows per value of column. Nulls are skipped.
func CountBy(t *table.Table, column string) (map[string]int, error) {
	c, err := t.Require(column)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for i := 0; i < t.NumRows(); i++ {
		if s, ok := c.Str(i); ok {
			counts[s]++
		}
	}
	return counts, nil
}

// TopN returns the n most frequent values of column, by count descending
// and then by value ascending. n <= 0 returns every group.
func TopN(t *table.Table, column string, n int) ([]Group, error) {
	counts, err := CountBy(t, column)
	if err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(counts))
	for k, v := range counts {
		groups = append(groups, Group{Key: k, Count: v})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	if n > 0 && len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

// GroupTable renders groups as a <keyName>/CANTIDAD table.
func GroupTable(keyName string, groups []Group) *table.Table {
	keys := make([]string, len(groups))
	counts := make([]int64, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
		counts[i] = int64(g.Count)
	}
	return table.MustNew(table.Strings(keyName, keys...), table.Ints("CANTIDAD", counts...))
}

// Band is a left-closed, right-open age interval.
type Band struct {
	Lo, Hi int
}

func (b Band) String() string { return fmt.Sprintf("%d-%d", b.Lo, b.Hi-1) }

// AgeBands are the Empleo +26 age bands.
var AgeBands = []Band{
	{26, 31}, {31, 36}, {36, 41}, {41, 46}, {46, 51}, {51, 56}, {56, 61}, {61, 66},
}

// BandCounts bins column into bands, in band order. Values outside every
// band are dropped; empty bands count 0.
func BandCounts(t *table.Table, column string, bands []Band) ([]Group, error) {
	c, err := t.Require(column)
	if err != nil {
		return nil, err
	}
	counts := make([]int, len(bands))
	for i := 0; i < t.NumRows(); i++ {
		v, ok := c.Float(i)
		if !ok || math.IsNaN(v) {
			continue
		}
		for j, b := range bands {
			if v >= float64(b.Lo) && v < float64(b.Hi) {
				counts[j]++
				break
			}
		}
	}
	out := make([]Group, len(bands))
	for j, b := range bands {
		out[j] = Group{Key: b.String(), Count: counts[j]}
	}
	return out, nil
}

// Distinct counts the distinct non-null values of column.
func Distinct(t *table.Table, column string) (int, error) {
	counts, err := CountBy(t, column)
	if err != nil {
		return 0, err
	}
	return len(counts), nil
}
