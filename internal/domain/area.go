package domain

import "time"

// Area is a named region whose polygon(s) bound entity membership.
//
// Areas are versioned through the same event log as entities, since
// community boundaries change over time. Geometry is stored as raw
// GeoJSON and parsed/validated by the index; malformed geometry is
// quarantined there, never silently dropped here.
type Area struct {
	ID       int64
	Name     string
	Revision int64

	// Geometry is the area's boundary as GeoJSON (Feature,
	// FeatureCollection, or bare Geometry). May be empty for areas
	// that have no drawable boundary yet.
	Geometry []byte

	Tags      map[string]string
	Deleted   bool
	UpdatedAt time.Time
}

// Tag returns the value of a tag, or "" if absent.
func (a *Area) Tag(key string) string {
	return a.Tags[key]
}
