// Package decode turns raw repository files into tables and map layers.
// Decoders never fail on empty content: they return an empty result and let
// the loader drop it.
package decode

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// ErrUnsupported is returned for files whose extension has no decoder.
var ErrUnsupported = errors.New("unsupported file type")

// Kind identifies a recognised file format.
type Kind string

const (
	KindColumnar Kind = "columnar"
	KindCSV      Kind = "csv"
	KindTSV      Kind = "tsv"
	KindGeoJSON  Kind = "geojson"
)

var extensions = map[string]Kind{
	".parquet": KindColumnar,
	".csv":     KindCSV,
	".txt":     KindTSV,
	".geojson": KindGeoJSON,
}

// KindOf returns the format for a path based on its extension.
func KindOf(p string) (Kind, bool) {
	k, ok := extensions[strings.ToLower(path.Ext(p))]
	return k, ok
}

// Recognised reports whether the loader should fetch the path at all.
func Recognised(p string) bool {
	_, ok := KindOf(p)
	return ok
}

// Result is a decoded file: exactly one of Table or Layer is set.
type Result struct {
	Kind  Kind
	Table *table.Table
	Layer *table.GeoLayer
}

// Empty reports whether the decoded content has no rows or features.
func (r Result) Empty() bool {
	if r.Layer != nil {
		return r.Layer.IsEmpty()
	}
	return r.Table.IsEmpty()
}

// Rows returns the row or feature count.
func (r Result) Rows() int {
	if r.Layer != nil {
		return r.Layer.Len()
	}
	return r.Table.NumRows()
}

// Decode dispatches on the path's extension.
func Decode(p string, data []byte) (Result, error) {
	kind, ok := KindOf(p)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}

	var (
		res = Result{Kind: kind}
		err error
	)
	switch kind {
	case KindColumnar:
		res.Table, err = Parquet(data)
	case KindCSV:
		res.Table, err = Delimited(data, ',')
	case KindTSV:
		res.Table, err = Delimited(data, '\t')
	case KindGeoJSON:
		res.Layer, err = GeoJSON(data)
	}
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", p, err)
	}
	return res, nil
}
