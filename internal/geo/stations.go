package geo

import (
	"sort"

	"github.com/samber/lo"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// CollapseStations dissolves exits sharing a station name into a single
// point at the centroid of their distinct locations. Exits are expected in
// the working CRS. When that CRS is geographic the centroid is computed in
// the projected CRS and brought back, so it is not skewed by degrees.
// Exits with an empty name form one "" station. Output is sorted by name.
func CollapseStations(exits []Exit, working, projected CRS) ([]Station, error) {
	groups := lo.GroupBy(exits, func(e Exit) string { return e.Station })

	frame := working
	if working.Geographic() {
		frame = projected
	}

	stations := make([]Station, 0, len(groups))
	for name, group := range groups {
		seen := make(map[[2]float64]bool, len(group))
		flat := make([]float64, 0, len(group)*2)
		used := 0
		for _, e := range group {
			if e.Point == nil {
				continue
			}
			used++
			p, err := Transform(e.Point, working, frame)
			if err != nil {
				return nil, err
			}
			c := [2]float64{p.FlatCoords()[0], p.FlatCoords()[1]}
			if seen[c] {
				continue
			}
			seen[c] = true
			flat = append(flat, c[0], c[1])
		}
		if len(flat) == 0 {
			continue
		}

		centroid := xy.PointsCentroidFlat(geom.XY, flat)
		pt, err := Transform(geom.NewPointFlat(geom.XY, []float64{centroid[0], centroid[1]}), frame, working)
		if err != nil {
			return nil, err
		}
		stations = append(stations, Station{Name: name, Point: pt.(*geom.Point), Exits: used})
	}

	sort.Slice(stations, func(i, j int) bool { return stations[i].Name < stations[j].Name })

	zap.L().Debug("geo: collapsed station exits",
		zap.Int("exits", len(exits)),
		zap.Int("stations", len(stations)),
		zap.String("centroid_crs", frame.Code),
	)
	return stations, nil
}
