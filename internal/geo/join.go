package geo

import (
	"github.com/tidwall/rtree"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// ZoneKey groups join results by subzone and planning area.
type ZoneKey struct {
	Subzone      string
	PlanningArea string
}

// Predicate selects how a point must relate to a polygon to match it.
type Predicate int

const (
	// Intersects matches points in the interior or on the boundary.
	Intersects Predicate = iota
	// Within matches points strictly inside the polygon; a point on the
	// boundary does not match.
	Within
)

func (p Predicate) String() string {
	switch p {
	case Intersects:
		return "intersects"
	case Within:
		return "within"
	default:
		return "unknown"
	}
}

// PolygonIndex is a bounding-box R-tree over zone polygons with an exact
// point-in-polygon refine step.
type PolygonIndex struct {
	tree  rtree.RTree
	zones []Zone
}

// NewPolygonIndex indexes zones. Zones without geometry are ignored.
func NewPolygonIndex(zones []Zone) *PolygonIndex {
	ix := &PolygonIndex{zones: zones}
	for i, z := range zones {
		if z.Geometry == nil || z.Geometry.Empty() {
			continue
		}
		b := z.Geometry.Bounds()
		ix.tree.Insert([2]float64{b.Min(0), b.Min(1)}, [2]float64{b.Max(0), b.Max(1)}, i)
	}
	return ix
}

// Match returns the keys of every zone the point satisfies pred against.
func (ix *PolygonIndex) Match(pt *geom.Point, pred Predicate) []ZoneKey {
	if pt == nil || pt.Empty() {
		return nil
	}
	c := geom.Coord{pt.X(), pt.Y()}
	q := [2]float64{c[0], c[1]}

	var keys []ZoneKey
	ix.tree.Search(q, q, func(_, _ [2]float64, v interface{}) bool {
		z := ix.zones[v.(int)]
		loc := locate(z.Geometry, c)
		switch {
		case pred == Within && loc == location.Interior,
			pred == Intersects && loc != location.Exterior:
			keys = append(keys, z.Key())
		}
		return true
	})
	return keys
}

// CountPoints counts, per zone key, the points matching pred. A point that
// matches two zones is counted for both.
func (ix *PolygonIndex) CountPoints(points []*geom.Point, pred Predicate) map[ZoneKey]int {
	counts := make(map[ZoneKey]int)
	for _, pt := range points {
		for _, k := range ix.Match(pt, pred) {
			counts[k]++
		}
	}
	return counts
}

// CountStations counts, per zone key, the distinct station names whose
// point matches pred.
func (ix *PolygonIndex) CountStations(stations []Station, pred Predicate) map[ZoneKey]int {
	names := make(map[ZoneKey]map[string]struct{})
	for _, s := range stations {
		for _, k := range ix.Match(s.Point, pred) {
			if names[k] == nil {
				names[k] = make(map[string]struct{})
			}
			names[k][s.Name] = struct{}{}
		}
	}
	counts := make(map[ZoneKey]int, len(names))
	for k, set := range names {
		counts[k] = len(set)
	}
	return counts
}

// locate classifies c against a Polygon or MultiPolygon.
func locate(g geom.T, c geom.Coord) location.Type {
	result := location.Exterior
	for _, p := range polygonsOf(g) {
		switch locateInPolygon(p, c) {
		case location.Interior:
			return location.Interior
		case location.Boundary:
			result = location.Boundary
		}
	}
	return result
}

func locateInPolygon(p *geom.Polygon, c geom.Coord) location.Type {
	if p.NumLinearRings() == 0 {
		return location.Exterior
	}
	shell := xy.LocatePointInRing(geom.XY, c, p.LinearRing(0).FlatCoords())
	if shell != location.Interior {
		return shell
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		switch xy.LocatePointInRing(geom.XY, c, p.LinearRing(i).FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			return location.Boundary
		}
	}
	return location.Interior
}
