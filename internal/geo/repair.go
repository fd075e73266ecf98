package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

// RepairPolygon returns a valid version of an areal geometry. Valid input
// is returned unchanged; invalid input (self-intersections, bow-ties,
// unclosed rings after decoding) is rebuilt with a zero-width buffer.
// The boolean reports whether a repair happened.
func RepairPolygon(g geom.T) (geom.T, bool, error) {
	if g == nil {
		return nil, false, nil
	}

	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, false, eris.Wrap(err, "geo: encode geometry for repair")
	}
	gg, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, false, eris.Wrap(err, "geo: load geometry into geos")
	}
	if gg.IsValid() {
		return g, false, nil
	}
	reason := gg.IsValidReason()

	buffered := gg.Buffer(0, 8)
	var repaired geom.T
	if err := geojson.Unmarshal([]byte(buffered.ToGeoJSON(-1)), &repaired); err != nil {
		return nil, false, eris.Wrap(err, "geo: decode repaired geometry")
	}
	repaired, err = forceXY(repaired)
	if err != nil {
		return nil, false, eris.Wrap(err, "geo: repaired geometry")
	}
	if !areal(repaired) {
		return nil, false, eris.Errorf("geo: repair collapsed geometry (%s)", reason)
	}

	zap.L().Debug("geo: repaired invalid polygon", zap.String("reason", reason))
	return repaired, true, nil
}

// RepairZones repairs every zone's geometry in place. Zones whose geometry
// cannot be repaired keep the original so they still appear in output.
func RepairZones(zones []Zone) int {
	var repaired int
	for i := range zones {
		g, changed, err := RepairPolygon(zones[i].Geometry)
		if err != nil {
			zap.L().Warn("geo: polygon repair failed, keeping original",
				zap.String("subzone", zones[i].Subzone), zap.Error(err))
			continue
		}
		if changed {
			zones[i].Geometry = g
			repaired++
		}
	}
	return repaired
}
