package decode

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// isoLayouts are the only layouts used for inference; day-first dates stay
// strings until the normalizer parses the declared date columns.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Delimited decodes UTF-8 text with a header row, inferring a type per
// column. Ragged rows are padded with nulls.
func Delimited(data []byte, comma rune) (*table.Table, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if len(bytes.TrimSpace(data)) == 0 {
		return table.Empty(), nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return table.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	names := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		base := norm.NFC.String(strings.TrimSpace(h))
		if base == "" {
			base = fmt.Sprintf("column_%d", i)
		}
		name := base
		if n := seen[base]; n > 0 {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		seen[base]++
		names[i] = name
	}

	raw := make([][]string, len(names))
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i := range names {
			cell := ""
			if i < len(rec) {
				cell = norm.NFC.String(strings.TrimSpace(rec[i]))
			}
			raw[i] = append(raw[i], cell)
		}
	}

	cols := make([]*table.Column, len(names))
	for i, name := range names {
		cols[i] = inferColumn(name, raw[i])
	}
	return table.New(cols...)
}

func inferColumn(name string, cells []string) *table.Column {
	typ := inferType(cells)
	data := make([]any, len(cells))
	for i, s := range cells {
		if s == "" {
			continue
		}
		switch typ {
		case table.Int64:
			data[i], _ = strconv.ParseInt(s, 10, 64)
		case table.Float64:
			data[i], _ = strconv.ParseFloat(s, 64)
		case table.Timestamp:
			data[i], _ = parseISO(s)
		default:
			data[i] = s
		}
	}
	return table.NewColumn(name, typ, data)
}

func inferType(cells []string) table.Type {
	isInt, isFloat, isTime := true, true, true
	nonEmpty := false
	for _, s := range cells {
		if s == "" {
			continue
		}
		nonEmpty = true
		if isInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				isFloat = false
			}
		}
		if isTime {
			if _, ok := parseISO(s); !ok {
				isTime = false
			}
		}
		if !isInt && !isFloat && !isTime {
			return table.String
		}
	}
	switch {
	case !nonEmpty:
		return table.String
	case isInt:
		return table.Int64
	case isFloat:
		return table.Float64
	case isTime:
		return table.Timestamp
	}
	return table.String
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
