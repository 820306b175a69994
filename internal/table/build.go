package table

import "time"

// Ints builds a non-null Int64 column.
func Ints(name string, vs ...int64) *Column {
	data := make([]any, len(vs))
	for i, v := range vs {
		data[i] = v
	}
	return NewColumn(name, Int64, data)
}

// Floats builds a non-null Float64 column.
func Floats(name string, vs ...float64) *Column {
	data := make([]any, len(vs))
	for i, v := range vs {
		data[i] = v
	}
	return NewColumn(name, Float64, data)
}

// Strings builds a non-null String column.
func Strings(name string, vs ...string) *Column {
	data := make([]any, len(vs))
	for i, v := range vs {
		data[i] = v
	}
	return NewColumn(name, String, data)
}

// Times builds a Timestamp column; zero times become nulls.
func Times(name string, vs ...time.Time) *Column {
	data := make([]any, len(vs))
	for i, v := range vs {
		if !v.IsZero() {
			data[i] = v
		}
	}
	return NewColumn(name, Timestamp, data)
}
