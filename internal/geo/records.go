package geo

import (
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Source property names used by the URA Master Plan and LTA layers.
const (
	AttrName         = "Name"
	AttrSubzone      = "SUBZONE_N"
	AttrPlanningArea = "PLN_AREA_N"
	AttrStation      = "STATION_NA"
	AttrDescription  = "Description"
)

// Zone is a subzone polygon with its identity.
//
// Name is nil when the source carries no Name property. Subzone and
// PlanningArea are upper-cased and trimmed; an empty Subzone means the
// polygon cannot be keyed and is left out of joins and output.
type Zone struct {
	Name         *string
	Subzone      string
	PlanningArea string
	Geometry     geom.T
}

// Key returns the (subzone, planning area) grouping key.
func (z Zone) Key() ZoneKey {
	return ZoneKey{Subzone: z.Subzone, PlanningArea: z.PlanningArea}
}

// Exit is one MRT station exit.
type Exit struct {
	Station string
	Point   *geom.Point
}

// Station is the representative point of all exits sharing a name.
type Station struct {
	Name  string
	Point *geom.Point
	Exits int
}

// attrOrDescription reads key from the structured properties, falling back
// to the embedded description table when the property is absent or blank.
func attrOrDescription(f Feature, key string, desc Attributes) (string, bool) {
	if v, ok := f.Attr(key); ok && v != "" {
		return v, true
	}
	if v, ok := desc.Lookup(key); ok {
		return v, true
	}
	return "", false
}

// ZonesFromLayer converts polygon features to zones. Features without a
// subzone code or with non-areal geometry are skipped. Polygons sharing a
// subzone code are merged into one MultiPolygon keyed by the first one's
// planning area. Zones are returned in first-seen order.
func ZonesFromLayer(l *Layer) []Zone {
	log := zap.L().With(zap.String("component", "geo.zones"))

	var (
		zones   []Zone
		index   = make(map[string]int)
		skipped int
	)
	for _, f := range l.Features {
		var desc Attributes
		needDesc := false
		for _, k := range []string{AttrSubzone, AttrPlanningArea} {
			if v, ok := f.Attr(k); !ok || v == "" {
				needDesc = true
			}
		}
		if needDesc {
			if raw, ok := f.Attr(AttrDescription); ok {
				desc = ParseDescription(raw)
			}
		}

		subzone, _ := attrOrDescription(f, AttrSubzone, desc)
		planArea, _ := attrOrDescription(f, AttrPlanningArea, desc)
		subzone = strings.ToUpper(strings.TrimSpace(subzone))
		planArea = strings.ToUpper(strings.TrimSpace(planArea))

		if subzone == "" || !areal(f.Geometry) {
			skipped++
			continue
		}

		var name *string
		if v, ok := f.Attrs[AttrName]; ok {
			name = &v
		}

		if i, ok := index[subzone]; ok {
			log.Warn("duplicate subzone code, merging geometry", zap.String("subzone", subzone))
			zones[i].Geometry = mergePolygons(zones[i].Geometry, f.Geometry)
			continue
		}
		index[subzone] = len(zones)
		zones = append(zones, Zone{
			Name:         name,
			Subzone:      subzone,
			PlanningArea: planArea,
			Geometry:     f.Geometry,
		})
	}

	if skipped > 0 {
		log.Warn("polygons without usable subzone code skipped", zap.Int("skipped", skipped))
	}
	return zones
}

// ExitsFromLayer reads station exits, recovering STATION_NA from the
// description when needed. Names are trimmed; a missing name becomes "".
func ExitsFromLayer(l *Layer) []Exit {
	exits := make([]Exit, 0, l.Len())
	for _, f := range l.Features {
		var desc Attributes
		if v, ok := f.Attr(AttrStation); !ok || v == "" {
			if raw, ok := f.Attr(AttrDescription); ok {
				desc = ParseDescription(raw)
			}
		}
		name, _ := attrOrDescription(f, AttrStation, desc)
		for _, pt := range pointsOf(f.Geometry) {
			exits = append(exits, Exit{Station: strings.TrimSpace(name), Point: pt})
		}
	}
	return exits
}

// PointsFromLayer returns every point in the layer; MultiPoints are
// flattened and other geometry types are ignored.
func PointsFromLayer(l *Layer) []*geom.Point {
	points := make([]*geom.Point, 0, l.Len())
	for _, f := range l.Features {
		points = append(points, pointsOf(f.Geometry)...)
	}
	return points
}

func pointsOf(g geom.T) []*geom.Point {
	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return nil
		}
		return []*geom.Point{t}
	case *geom.MultiPoint:
		out := make([]*geom.Point, 0, t.NumPoints())
		for i := 0; i < t.NumPoints(); i++ {
			out = append(out, t.Point(i))
		}
		return out
	default:
		return nil
	}
}

func areal(g geom.T) bool {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return !g.Empty()
	default:
		return false
	}
}

func polygonsOf(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, t.Polygon(i))
		}
		return out
	default:
		return nil
	}
}

// mergePolygons collects the polygons of a and b into one MultiPolygon.
func mergePolygons(a, b geom.T) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range append(polygonsOf(a), polygonsOf(b)...) {
		if err := mp.Push(p); err != nil {
			zap.L().Debug("geo: skipping polygon during merge", zap.Error(err))
		}
	}
	return mp
}
