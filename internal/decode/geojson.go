package decode

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/cordoba-data/program-dashboard/internal/table"
)

// GeoJSON decodes a FeatureCollection (or a lone Feature) into a layer.
func GeoJSON(data []byte) (*table.GeoLayer, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\ufeff")))
	if len(data) == 0 {
		return table.NewGeoLayer(nil), nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("geojson: %w", err)
	}

	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("geojson feature: %w", err)
		}
		return table.NewGeoLayer([]*geojson.Feature{f}), nil
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("geojson collection: %w", err)
		}
		return table.NewGeoLayer(fc.Features), nil
	default:
		return nil, fmt.Errorf("geojson: unexpected type %q", probe.Type)
	}
}
