package table

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// GeoLayer is a collection of map features. Properties are never nil.
type GeoLayer struct {
	Features []*geojson.Feature
}

// NewGeoLayer wraps features, guaranteeing each carries a properties map.
func NewGeoLayer(features []*geojson.Feature) *GeoLayer {
	for _, f := range features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}
	return &GeoLayer{Features: features}
}

// Len returns the number of features.
func (g *GeoLayer) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Features)
}

// IsEmpty reports whether the layer has no features.
func (g *GeoLayer) IsEmpty() bool { return g.Len() == 0 }

// Clone copies the layer and every feature's properties. Geometry is shared;
// it is treated as opaque and never mutated.
func (g *GeoLayer) Clone() *GeoLayer {
	if g == nil {
		return nil
	}
	out := &GeoLayer{Features: make([]*geojson.Feature, len(g.Features))}
	for i, f := range g.Features {
		props := make(geojson.Properties, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		cp := *f
		cp.Properties = props
		out.Features[i] = &cp
	}
	return out
}

// MarshalJSON renders the layer as a GeoJSON FeatureCollection.
func (g *GeoLayer) MarshalJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	fc.Features = g.Features
	return json.Marshal(fc)
}
