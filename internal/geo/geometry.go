// Package geo parses area boundaries from GeoJSON and answers
// point-in-polygon containment with closed-region semantics.
package geo

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry is a validated, flattened polygon set ready for containment
// tests. Build one with Parse.
type Geometry struct {
	polygons []orb.Polygon
}

// Parse decodes a GeoJSON document (FeatureCollection, Feature, or bare
// Geometry) and extracts its polygonal parts.
//
// Non-polygonal members (points, lines) are ignored; a document with no
// Polygon or MultiPolygon at all is rejected, as is any ring that is not
// closed or has fewer than four positions. The containment algorithm
// assumes simple rings, so malformed input must not get past here.
func Parse(raw []byte) (*Geometry, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse geometry: empty document")
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		for _, f := range fc.Features {
			if f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("parse geometry: %w", err)
		}
		geoms = append(geoms, g.Geometry())
	}

	var polygons []orb.Polygon
	for _, g := range geoms {
		polygons = appendPolygons(polygons, g)
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("parse geometry: no polygonal geometry in document")
	}

	for _, poly := range polygons {
		for _, ring := range poly {
			if err := validateRing(ring); err != nil {
				return nil, fmt.Errorf("parse geometry: %w", err)
			}
		}
	}

	return &Geometry{polygons: polygons}, nil
}

// PolygonCount returns the number of polygons in the set.
func (g *Geometry) PolygonCount() int {
	return len(g.polygons)
}

func appendPolygons(dst []orb.Polygon, g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		dst = append(dst, v)
	case orb.MultiPolygon:
		dst = append(dst, v...)
	case orb.Collection:
		for _, member := range v {
			dst = appendPolygons(dst, member)
		}
	}
	return dst
}

func validateRing(r orb.Ring) error {
	if len(r) < 4 {
		return fmt.Errorf("ring has %d positions, need at least 4", len(r))
	}
	if r[0] != r[len(r)-1] {
		return fmt.Errorf("ring is not closed")
	}
	return nil
}
