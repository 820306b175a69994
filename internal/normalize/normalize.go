// Package normalize applies the per-program cleanups that turn decoded
// tables into analysis-ready ones: date parsing with range clamping, numeric
// coercion, identifier hygiene and de-duplication. Every step is idempotent.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Representable date range. Values outside it become null.
var (
	MinDate = time.Unix(0, math.MinInt64).UTC()
	MaxDate = time.Unix(0, math.MaxInt64).UTC()
)

// Rules declares the cleanups for one table.
type Rules struct {
	// Dates are coerced to timestamps.
	Dates []string
	// Primary is the date column whose null rows are dropped. It is
	// implicitly part of Dates.
	Primary string
	// Numeric columns are coerced to float64 with null → 0.
	Numeric []string
	// Identifiers are rendered as strings without hyphens.
	Identifiers []string
	// DedupKey columns identify a row; the first occurrence wins.
	DedupKey []string
}

// Apply runs the rules over t and returns the cleaned table plus warnings for
// declared columns that are absent where the absence changes the result
// (primary date, de-duplication key). Other absent columns are skipped.
func Apply(t *table.Table, r Rules) (*table.Table, []string) {
	if t == nil {
		return table.Empty(), nil
	}
	var warnings []string
	out := t

	for _, name := range r.Identifiers {
		if c, ok := out.Column(name); ok {
			out = replace(out, Identifier(c))
		}
	}

	dates := r.Dates
	if r.Primary != "" {
		dates = append([]string{r.Primary}, dates...)
	}
	for _, name := range dates {
		if c, ok := out.Column(name); ok {
			out = replace(out, Dates(c))
		}
	}
	if r.Primary != "" {
		if c, ok := out.Column(r.Primary); ok {
			out = out.Filter(func(i int) bool { return !c.IsNull(i) })
		} else {
			warnings = append(warnings, fmt.Sprintf("%v: %s", table.ErrMissingColumn, r.Primary))
		}
	}

	for _, name := range r.Numeric {
		if c, ok := out.Column(name); ok {
			out = replace(out, Numbers(c))
		}
	}

	if len(r.DedupKey) > 0 {
		if out.Has(r.DedupKey...) {
			out = Dedup(out, r.DedupKey...)
		} else {
			warnings = append(warnings, fmt.Sprintf("%v: de-duplication key %s", table.ErrMissingColumn, strings.Join(r.DedupKey, ", ")))
		}
	}
	return out, warnings
}

func replace(t *table.Table, c *table.Column) *table.Table {
	out, err := t.WithColumn(c)
	if err != nil {
		// Same length by construction.
		panic(err)
	}
	return out
}

// Dates coerces a column to Timestamp. Unparseable or out-of-range values
// become null.
func Dates(c *table.Column) *table.Column {
	data := make([]any, c.Len())
	for i := range data {
		if t, ok := ParseDate(c.Value(i)); ok {
			data[i] = t
		}
	}
	return table.NewColumn(c.Name, table.Timestamp, data)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"02/01/2006",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
}

// ParseDate converts a cell value to a time within the representable range.
// Strings use ISO or day-first layouts; integers are read as YYYYMMDD.
func ParseDate(v any) (time.Time, bool) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		parsed := false
		for _, layout := range dateLayouts {
			if p, err := time.Parse(layout, s); err == nil {
				t, parsed = p, true
				break
			}
		}
		if !parsed {
			return time.Time{}, false
		}
	case int64:
		return compactDate(x)
	case float64:
		if x != x || x != math.Trunc(x) {
			return time.Time{}, false
		}
		return compactDate(int64(x))
	default:
		return time.Time{}, false
	}
	if t.Before(MinDate) || t.After(MaxDate) {
		return time.Time{}, false
	}
	return t, true
}

func compactDate(n int64) (time.Time, bool) {
	if n < 10000101 || n > 99991231 {
		return time.Time{}, false
	}
	y, m, d := int(n/10000), time.Month(n/100%100), int(n%100)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Month() != m || t.Before(MinDate) || t.After(MaxDate) {
		return time.Time{}, false
	}
	return t, true
}

// Numbers coerces a column to Float64 with null → 0.
func Numbers(c *table.Column) *table.Column {
	data := make([]any, c.Len())
	for i := range data {
		f, _ := ParseNumber(c.Value(i))
		data[i] = f
	}
	return table.NewColumn(c.Name, table.Float64, data)
}

// ParseNumber converts a cell value to float64. Strings may use a comma as
// decimal separator ("1.234,5" and "1234,5" both read as 1234.5). Nulls,
// NaN and unparseable values report 0, false.
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case int64:
		return float64(x), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), " ", "")
		if s == "" {
			return 0, false
		}
		switch comma := strings.LastIndex(s, ","); {
		case comma < 0:
		case comma > strings.LastIndex(s, ".") && strings.Count(s, ",") == 1:
			s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Identifier renders a CUIL/CUIT column as hyphen-free strings. Nulls stay
// null.
func Identifier(c *table.Column) *table.Column {
	data := make([]any, c.Len())
	for i := range data {
		if s, ok := c.Str(i); ok {
			data[i] = CleanID(s)
		}
	}
	return table.NewColumn(c.Name, table.String, data)
}

// CleanID strips hyphens and surrounding space from an identifier.
func CleanID(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "-", ""))
}

// Dedup keeps the first row of each distinct key. Nulls compare equal to
// each other.
func Dedup(t *table.Table, key ...string) *table.Table {
	cols := make([]*table.Column, 0, len(key))
	for _, k := range key {
		c, ok := t.Column(k)
		if !ok {
			return t
		}
		cols = append(cols, c)
	}
	seen := make(map[string]struct{}, t.NumRows())
	var sb strings.Builder
	return t.Filter(func(i int) bool {
		sb.Reset()
		for j, c := range cols {
			if j > 0 {
				sb.WriteByte(0x1f)
			}
			if s, ok := c.Str(i); ok {
				sb.WriteByte('v')
				sb.WriteString(s)
			}
		}
		k := sb.String()
		if _, dup := seen[k]; dup {
			return false
		}
		seen[k] = struct{}{}
		return true
	})
}
