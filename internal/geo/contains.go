package geo

import (
	"github.com/paulmach/orb"

	"github.com/poimirror/poimirror/internal/domain"
)

// Contains reports whether the point lies inside the polygon set,
// treating every boundary as part of the region (closed semantics).
//
// A point exactly on an outer ring, a hole ring, or a shared vertex is a
// member. The boundary test runs before the ray cast and uses exact
// float comparison, so repeated evaluations of unchanged geometry always
// agree - membership must not flap across reindexes.
func (g *Geometry) Contains(p domain.Point) bool {
	pt := orb.Point{p.Lon, p.Lat}
	for _, poly := range g.polygons {
		if polygonContains(poly, pt) {
			return true
		}
	}
	return false
}

func polygonContains(poly orb.Polygon, pt orb.Point) bool {
	if len(poly) == 0 {
		return false
	}

	// Outer ring: boundary counts as inside.
	if !ringContains(poly[0], pt) {
		return false
	}

	// Holes: only a strict interior hit excludes the point. A point on a
	// hole's edge is on the region boundary, which is inside.
	for _, hole := range poly[1:] {
		if ringWinds(hole, pt) && !ringBoundary(hole, pt) {
			return false
		}
	}
	return true
}

// ringContains is the closed-region test for one ring.
func ringContains(r orb.Ring, pt orb.Point) bool {
	if ringBoundary(r, pt) {
		return true
	}
	return ringWinds(r, pt)
}

// ringBoundary reports whether the point lies on any segment of the ring.
func ringBoundary(r orb.Ring, pt orb.Point) bool {
	for i := 0; i < len(r)-1; i++ {
		if onSegment(r[i], r[i+1], pt) {
			return true
		}
	}
	return false
}

// ringWinds is the even-odd ray cast. Only meaningful for points not on
// the boundary; callers check ringBoundary first.
func ringWinds(r orb.Ring, pt orb.Point) bool {
	inside := false
	for i := 0; i < len(r)-1; i++ {
		a, b := r[i], r[i+1]
		if (a[1] > pt[1]) != (b[1] > pt[1]) {
			x := a[0] + (pt[1]-a[1])*(b[0]-a[0])/(b[1]-a[1])
			if pt[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether pt lies on the segment [a, b], endpoints
// included.
func onSegment(a, b, pt orb.Point) bool {
	cross := (b[0]-a[0])*(pt[1]-a[1]) - (b[1]-a[1])*(pt[0]-a[0])
	if cross != 0 {
		return false
	}
	if pt[0] < min(a[0], b[0]) || pt[0] > max(a[0], b[0]) {
		return false
	}
	if pt[1] < min(a[1], b[1]) || pt[1] > max(a[1], b[1]) {
		return false
	}
	return true
}
