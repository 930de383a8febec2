package domain

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// ExternalID identifies an entity in the upstream mapping source.
//
// The source namespaces its numeric ids by element type (node, way,
// relation), so both parts are needed for a stable key. The canonical
// string form is "type:id", e.g. "node:25338659".
type ExternalID struct {
	Type string
	Ref  int64
}

// String returns the canonical "type:id" form.
func (x ExternalID) String() string {
	return fmt.Sprintf("%s:%d", x.Type, x.Ref)
}

// ParseExternalID parses the canonical "type:id" form.
func ParseExternalID(s string) (ExternalID, error) {
	typ, ref, ok := strings.Cut(s, ":")
	if !ok {
		return ExternalID{}, fmt.Errorf("parse external id %q: missing separator", s)
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return ExternalID{}, fmt.Errorf("parse external id %q: %w", s, err)
	}
	return ExternalID{Type: typ, Ref: n}, nil
}

// Point is a single WGS84 coordinate.
type Point struct {
	Lon float64
	Lat float64
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// Entity is the current-state projection of one point of interest.
//
// It is a pure fold over the entity's event history: replaying all events
// in revision order reproduces this struct exactly. The store owns its
// durability; revisions are assigned by the store on append.
type Entity struct {
	// ID is the stable internal id (store-assigned, never reused).
	ID int64

	// External identifies the entity in the upstream source.
	External ExternalID

	// Revision is the entity's current revision. Strictly increasing,
	// contiguous from 1, one step per committed event.
	Revision int64

	// Point is the entity's location, or nil if currently unlocated.
	Point *Point

	// Tags is the entity's tag mapping as last seen upstream.
	Tags map[string]string

	// Deleted marks entities that vanished from a complete upstream
	// snapshot. Deleted entities have no area memberships.
	Deleted bool

	// LastSyncedAt is when the most recent event was committed.
	LastSyncedAt time.Time
}

// SamePayload reports whether geometry and tags match the given snapshot.
// Used by sync diffing to detect the unchanged (no-event) case.
func (e *Entity) SamePayload(p *Point, tags map[string]string) bool {
	if (e.Point == nil) != (p == nil) {
		return false
	}
	if e.Point != nil && *e.Point != *p {
		return false
	}
	return maps.Equal(e.Tags, tags)
}

// Tag returns the value of a tag, or "" if absent.
func (e *Entity) Tag(key string) string {
	return e.Tags[key]
}
