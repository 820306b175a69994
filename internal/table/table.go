// Package table is the in-memory tabular model shared by the decoders, the
// normalizer and the KPI engine. Every column carries an explicit type and
// nulls are explicit, so callers check presence instead of assuming it.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingColumn is returned when an operation needs a column the table
// does not have.
var ErrMissingColumn = errors.New("missing column")

// Type is the semantic type of a column.
type Type int

const (
	String Type = iota
	Int64
	Float64
	Timestamp
	Category
)

func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Timestamp:
		return "timestamp"
	case Category:
		return "category"
	default:
		return "string"
	}
}

// MarshalJSON renders the type by name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Column holds the values of one named column. A nil element is a null.
// Non-null elements are int64, float64, string or time.Time depending on Type
// (Category stores strings).
type Column struct {
	Name string
	Type Type
	data []any
}

// NewColumn builds a column from already-typed values.
func NewColumn(name string, typ Type, values []any) *Column {
	return &Column{Name: name, Type: typ, data: values}
}

// Len returns the number of values.
func (c *Column) Len() int { return len(c.data) }

// Value returns the raw value at i (nil for null).
func (c *Column) Value(i int) any { return c.data[i] }

// IsNull reports whether the value at i is null.
func (c *Column) IsNull(i int) bool { return c.data[i] == nil }

// Int returns the value at i as an int64. Floats are truncated and numeric
// strings are parsed; anything else reports false.
func (c *Column) Int(i int) (int64, bool) {
	switch v := c.data[i].(type) {
	case int64:
		return v, true
	case float64:
		if v != v {
			return 0, false
		}
		return int64(v), true
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// Float returns the value at i as a float64.
func (c *Column) Float(i int) (float64, bool) {
	switch v := c.data[i].(type) {
	case int64:
		return float64(v), true
	case float64:
		if v != v {
			return 0, false
		}
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Str returns the value at i rendered as a string. Integral floats render
// without a fractional part so identifiers read back as "20123456789".
func (c *Column) Str(i int) (string, bool) {
	v := c.data[i]
	if v == nil {
		return "", false
	}
	return FormatValue(v), true
}

// Time returns the value at i as a time.Time.
func (c *Column) Time(i int) (time.Time, bool) {
	t, ok := c.data[i].(time.Time)
	return t, ok
}

// FormatValue renders a non-null cell value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) && x < 1e18 && x > -1e18 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func (c *Column) clone() *Column {
	data := make([]any, len(c.data))
	copy(data, c.data)
	return &Column{Name: c.Name, Type: c.Type, data: data}
}

// Table is an ordered collection of rows over a named-column schema. Row
// order is the source order.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New builds a table from columns of equal length.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return nil, fmt.Errorf("column %s has %d values, want %d", c.Name, c.Len(), t.rows)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %s", c.Name)
		}
		t.index[c.Name] = i
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// MustNew is New for fixed, known-good inputs such as test fixtures.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with no columns and no rows.
func Empty() *Table { return &Table{index: map[string]int{}} }

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return t.NumRows() == 0 }

// Columns returns the columns in schema order.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in schema order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the table has every named column.
func (t *Table) Has(names ...string) bool {
	if t == nil {
		return false
	}
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			return false
		}
	}
	return true
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	if t == nil {
		return nil, false
	}
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Require returns the named column or an error wrapping ErrMissingColumn.
func (t *Table) Require(name string) (*Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return c, nil
}

// Clone returns a deep copy of the table's column slices.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.cols)), rows: t.rows}
	for i, c := range t.cols {
		out.cols = append(out.cols, c.clone())
		out.index[c.Name] = i
	}
	return out
}

// WithColumn returns a copy of the table where the named column is replaced
// (or appended when absent).
func (t *Table) WithColumn(c *Column) (*Table, error) {
	if c.Len() != t.rows && len(t.cols) > 0 {
		return nil, fmt.Errorf("column %s has %d values, want %d", c.Name, c.Len(), t.rows)
	}
	out := &Table{index: make(map[string]int, len(t.cols)+1), rows: c.Len()}
	if len(t.cols) > 0 {
		out.rows = t.rows
	}
	replaced := false
	for i, existing := range t.cols {
		if existing.Name == c.Name {
			out.cols = append(out.cols, c)
			replaced = true
		} else {
			out.cols = append(out.cols, existing)
		}
		out.index[out.cols[i].Name] = i
	}
	if !replaced {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out, nil
}

// Filter returns the rows for which keep reports true, in order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var idx []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Take(idx)
}

// Take returns the given rows, in the given order.
func (t *Table) Take(rows []int) *Table {
	out := &Table{index: make(map[string]int, len(t.cols)), rows: len(rows)}
	for i, c := range t.cols {
		data := make([]any, len(rows))
		for j, r := range rows {
			data[j] = c.data[r]
		}
		out.cols = append(out.cols, &Column{Name: c.Name, Type: c.Type, data: data})
		out.index[c.Name] = i
	}
	return out
}

// Row returns row i as a name → value map.
func (t *Table) Row(i int) map[string]any {
	m := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		m[c.Name] = c.data[i]
	}
	return m
}

type columnJSON struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// MarshalJSON renders the table as {"columns": [...], "rows": [[...]]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	cols := make([]columnJSON, len(t.cols))
	for i, c := range t.cols {
		cols[i] = columnJSON{Name: c.Name, Type: c.Type}
	}
	rows := make([][]any, t.rows)
	for r := 0; r < t.rows; r++ {
		row := make([]any, len(t.cols))
		for i, c := range t.cols {
			v := c.data[r]
			if f, ok := v.(float64); ok && f != f {
				v = nil
			}
			row[i] = v
		}
		rows[r] = row
	}
	return json.Marshal(struct {
		Columns []columnJSON `json:"columns"`
		Rows    [][]any      `json:"rows"`
	}{cols, rows})
}
