package kpi

import (
	"strconv"
	"strings"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// Join keys between business tables and the department layer.
const (
	ColDepartment  = "ID_DPTO"
	PropDepartment = "CODDEPTO"
	PropCount      = "CANTIDAD"
)

// JoinKey canonicalises a department code so that 14, 14.0, "14" and "014"
// all join.
func JoinKey(v any) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(table.FormatValue(v))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// CountByKey counts rows per canonical department key.
func CountByKey(t *table.Table, column string) (map[string]int, error) {
	c, err := t.Require(column)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for i := 0; i < t.NumRows(); i++ {
		if k := JoinKey(c.Value(i)); k != "" {
			counts[k]++
		}
	}
	return counts, nil
}

// JoinCounts returns a copy of layer where every feature carries
// properties[PropCount] from counts, 0 when its CODDEPTO has no match. The
// input layer is not modified.
func JoinCounts(layer *table.GeoLayer, counts map[string]int) *table.GeoLayer {
	out := layer.Clone()
	if out == nil {
		return nil
	}
	for _, f := range out.Features {
		f.Properties[PropCount] = counts[JoinKey(f.Properties[PropDepartment])]
	}
	return out
}
