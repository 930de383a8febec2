package index

import (
	"errors"
	"fmt"
	"sync"

	"github.com/poimirror/poimirror/internal/domain"
	"github.com/poimirror/poimirror/internal/geo"
)

// BrokenAreaError marks an area whose geometry cannot be used for
// containment. The area's membership defaults to empty; indexing of
// other areas is unaffected.
type BrokenAreaError struct {
	AreaID int64
	Err    error
}

// Error implements the error interface.
func (e *BrokenAreaError) Error() string {
	return fmt.Sprintf("area %d geometry unusable: %v", e.AreaID, e.Err)
}

// Unwrap exposes the parse error.
func (e *BrokenAreaError) Unwrap() error {
	return e.Err
}

// IsBrokenArea reports whether err marks unusable area geometry.
func IsBrokenArea(err error) bool {
	var be *BrokenAreaError
	return errors.As(err, &be)
}

// geometryCache holds parsed area geometries keyed by (area id,
// revision). A revision bump invalidates the entry, so geometry changes
// are picked up without explicit eviction. Broken geometries are cached
// too - reparsing a bad document on every reindex would only repeat the
// failure.
type geometryCache struct {
	mu      sync.Mutex
	entries map[int64]*cacheEntry
}

type cacheEntry struct {
	revision int64
	geom     *geo.Geometry
	err      error
}

func newGeometryCache() *geometryCache {
	return &geometryCache{entries: map[int64]*cacheEntry{}}
}

// geometryFor returns the parsed geometry for the area's current
// revision, or (nil, false) when the area has no usable geometry - either
// none at all or a malformed document.
func (c *geometryCache) geometryFor(area *domain.Area) (*geo.Geometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[area.ID]; ok && entry.revision == area.Revision {
		return entry.geom, entry.geom != nil
	}

	entry := &cacheEntry{revision: area.Revision}
	if len(area.Geometry) == 0 {
		entry.err = errors.New("area has no geometry")
	} else {
		geom, err := geo.Parse(area.Geometry)
		if err != nil {
			entry.err = err
		} else {
			entry.geom = geom
		}
	}
	c.entries[area.ID] = entry
	return entry.geom, entry.geom != nil
}

// brokenReason returns why the area's cached geometry is unusable, or
// nil if it is fine or unknown.
func (c *geometryCache) brokenReason(areaID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[areaID]; ok {
		return entry.err
	}
	return nil
}
