package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
	"golang.org/x/text/unicode/norm"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

const julianUnixEpoch = 2440588

type leaf struct {
	name    string
	typ     table.Type
	convert func(parquet.Value) any
}

// Parquet decodes a flat columnar file, keeping the file's native column
// types. Nested leaves are flattened to dotted names; repeated leaves keep
// their last value per row.
func Parquet(data []byte) (*table.Table, error) {
	if len(data) == 0 {
		return table.Empty(), nil
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	schema := f.Schema()
	paths := schema.Columns()
	leaves := make([]leaf, len(paths))
	for _, p := range paths {
		lc, ok := schema.Lookup(p...)
		if !ok || lc.ColumnIndex >= len(leaves) {
			continue
		}
		typ, conv := leafConverter(lc.Node)
		leaves[lc.ColumnIndex] = leaf{name: strings.Join(p, "."), typ: typ, convert: conv}
	}

	cols := make([][]any, len(leaves))
	buf := make([]parquet.Row, 256)
	for _, rg := range f.RowGroups() {
		if err := readRowGroup(rg, leaves, cols, buf); err != nil {
			return nil, err
		}
	}

	out := make([]*table.Column, 0, len(leaves))
	for i, l := range leaves {
		if l.convert == nil {
			continue
		}
		vals := cols[i]
		if vals == nil {
			vals = []any{}
		}
		out = append(out, table.NewColumn(l.name, l.typ, vals))
	}
	return table.New(out...)
}

func readRowGroup(rg parquet.RowGroup, leaves []leaf, cols [][]any, buf []parquet.Row) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			vals := make([]any, len(leaves))
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(leaves) || v.IsNull() || leaves[c].convert == nil {
					continue
				}
				vals[c] = leaves[c].convert(v)
			}
			for i := range leaves {
				cols[i] = append(cols[i], vals[i])
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func leafConverter(node parquet.Node) (table.Type, func(parquet.Value) any) {
	typ := node.Type()
	lt := typ.LogicalType()
	ct := typ.ConvertedType()

	switch typ.Kind() {
	case parquet.Boolean:
		return table.Int64, func(v parquet.Value) any {
			if v.Boolean() {
				return int64(1)
			}
			return int64(0)
		}

	case parquet.Int32:
		switch {
		case (lt != nil && lt.Date != nil) || (ct != nil && *ct == deprecated.Date):
			return table.Timestamp, func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}
		case lt != nil && lt.Decimal != nil:
			scale := math.Pow10(int(lt.Decimal.Scale))
			return table.Float64, func(v parquet.Value) any { return float64(v.Int32()) / scale }
		}
		return table.Int64, func(v parquet.Value) any { return int64(v.Int32()) }

	case parquet.Int64:
		if unit := timestampUnit(lt, ct); unit > 0 {
			return table.Timestamp, func(v parquet.Value) any {
				return unixIn(v.Int64(), unit)
			}
		}
		if lt != nil && lt.Decimal != nil {
			scale := math.Pow10(int(lt.Decimal.Scale))
			return table.Float64, func(v parquet.Value) any { return float64(v.Int64()) / scale }
		}
		return table.Int64, func(v parquet.Value) any { return v.Int64() }

	case parquet.Int96:
		return table.Timestamp, func(v parquet.Value) any { return int96Time(v.Int96()) }

	case parquet.Float:
		return table.Float64, func(v parquet.Value) any { return float64(v.Float()) }

	case parquet.Double:
		return table.Float64, func(v parquet.Value) any { return v.Double() }

	case parquet.ByteArray, parquet.FixedLenByteArray:
		if lt != nil && lt.Decimal != nil {
			scale := new(big.Float).SetFloat64(math.Pow10(int(lt.Decimal.Scale)))
			return table.Float64, func(v parquet.Value) any {
				f, _ := new(big.Float).Quo(new(big.Float).SetInt(signedBigEndian(v.ByteArray())), scale).Float64()
				return f
			}
		}
		if (lt != nil && lt.Enum != nil) || (ct != nil && *ct == deprecated.Enum) {
			return table.Category, func(v parquet.Value) any { return norm.NFC.String(string(v.ByteArray())) }
		}
		return table.String, func(v parquet.Value) any { return norm.NFC.String(string(v.ByteArray())) }
	}
	return table.String, nil
}

// timestampUnit returns nanoseconds per tick, or 0 for non-timestamps.
func timestampUnit(lt *format.LogicalType, ct *deprecated.ConvertedType) time.Duration {
	if lt != nil && lt.Timestamp != nil {
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			return time.Millisecond
		case lt.Timestamp.Unit.Micros != nil:
			return time.Microsecond
		default:
			return time.Nanosecond
		}
	}
	if ct != nil {
		switch *ct {
		case deprecated.TimestampMillis:
			return time.Millisecond
		case deprecated.TimestampMicros:
			return time.Microsecond
		}
	}
	return 0
}

func unixIn(n int64, unit time.Duration) time.Time {
	switch unit {
	case time.Millisecond:
		return time.UnixMilli(n).UTC()
	case time.Microsecond:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(0, n).UTC()
	}
}

func int96Time(v deprecated.Int96) time.Time {
	nanos := int64(uint64(v[1])<<32 | uint64(v[0]))
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos).UTC()
}

func signedBigEndian(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}
