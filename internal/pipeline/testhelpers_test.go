package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/fetcher"
	"github.com/sells-group/hscore/internal/geo"
)

// fixture is a set of input files in a temp directory.
type fixture struct {
	dir string
	cfg *config.Config
}

func feature(props map[string]any, g map[string]any) map[string]any {
	return map[string]any{"type": "Feature", "properties": props, "geometry": g}
}

func pointGeom(x, y float64) map[string]any {
	return map[string]any{"type": "Point", "coordinates": []float64{x, y}}
}

func squareGeom(x0, y0, size float64) map[string]any {
	return map[string]any{
		"type": "Polygon",
		"coordinates": [][][]float64{{
			{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
		}},
	}
}

// svy21Point projects a lon/lat into an EPSG:3414 point geometry.
func svy21Point(t *testing.T, lon, lat float64) map[string]any {
	t.Helper()
	g, err := geo.Transform(geom.NewPointFlat(geom.XY, []float64{lon, lat}), geo.WGS84, geo.SVY21)
	require.NoError(t, err)
	p := g.(*geom.Point)
	return pointGeom(p.X(), p.Y())
}

func (f *fixture) writeJSON(t *testing.T, name string, features []map[string]any) string {
	t.Helper()
	if features == nil {
		features = []map[string]any{}
	}
	data, err := json.Marshal(map[string]any{"type": "FeatureCollection", "features": features})
	require.NoError(t, err)
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (f *fixture) writeText(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newFixture writes three 0.01° subzones side by side at lat 1.30:
//
//	ALPHA (PA)  lon 103.80-103.81, structured columns, 2 hawkers, station S1 (2 exits)
//	BETA  (PA)  lon 103.81-103.82, description-only, 1 hawker, station S2
//	GAMMA (PB)  lon 103.82-103.83, no census row, 2 bus stops
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}

	betaDesc := "<center><table><tr><th>Attributes</th></tr>" +
		"<tr><th>SUBZONE_N</th><td>BETA</td></tr>" +
		"<tr><th>PLN_AREA_N</th><td>PA</td></tr></table></center>"

	subzones := f.writeJSON(t, "subzones.geojson", []map[string]any{
		feature(map[string]any{"Name": "Alpha", "SUBZONE_N": "alpha ", "PLN_AREA_N": "PA"}, squareGeom(103.80, 1.30, 0.01)),
		feature(map[string]any{"Name": "kml_2", "Description": betaDesc}, squareGeom(103.81, 1.30, 0.01)),
		feature(map[string]any{"SUBZONE_N": "GAMMA", "PLN_AREA_N": "PB"}, squareGeom(103.82, 1.30, 0.01)),
		feature(map[string]any{"Name": "no code"}, squareGeom(103.90, 1.30, 0.01)),
	})
	hawkers := f.writeJSON(t, "hawkers.geojson", []map[string]any{
		feature(map[string]any{"Name": "h1"}, pointGeom(103.802, 1.302)),
		feature(map[string]any{"Name": "h2"}, pointGeom(103.805, 1.305)),
		feature(map[string]any{"Name": "h3"}, pointGeom(103.815, 1.305)),
		feature(map[string]any{"Name": "far"}, pointGeom(104.5, 1.5)),
	})
	exits := f.writeJSON(t, "exits.geojson", []map[string]any{
		feature(map[string]any{"STATION_NA": "S1 MRT STATION", "EXIT_CODE": "Exit A"}, pointGeom(103.803, 1.303)),
		feature(map[string]any{"STATION_NA": "S1 MRT STATION", "EXIT_CODE": "Exit B"}, pointGeom(103.805, 1.303)),
		feature(map[string]any{"STATION_NA": "S2 MRT STATION", "EXIT_CODE": "Exit A"}, pointGeom(103.815, 1.308)),
	})
	bus := f.writeJSON(t, "bus.geojson", []map[string]any{
		feature(map[string]any{"BUS_STOP_N": "01012"}, svy21Point(t, 103.825, 1.305)),
		feature(map[string]any{"BUS_STOP_N": "01013"}, svy21Point(t, 103.826, 1.306)),
	})
	census := f.writeText(t, "census.csv",
		"Number,Total_Total,Total_0_4,Total_30_34,Total_65_69\n"+
			"Total,9999,1,1,1\n"+
			"PA - Total,400,1,1,1\n"+
			"Alpha,100,10,80,10\n"+
			"Beta,\"1,300\",300,\"1,000\",0\n"+
			"PB - Total,0,0,0,0\n")

	f.cfg = &config.Config{
		Inputs: config.InputsConfig{
			Subzones: config.LayerConfig{Path: subzones, CRS: "EPSG:4326"},
			Census:   config.LayerConfig{Path: census},
			Hawkers:  config.LayerConfig{Path: hawkers, CRS: "EPSG:4326"},
			MRTExits: config.LayerConfig{Path: exits, CRS: "EPSG:4326", ForceCRS: true},
			BusStops: config.LayerConfig{Path: bus, CRS: "EPSG:3414", ForceCRS: true},
		},
		Census: config.CensusConfig{
			IDColumn: "Number",
			Youth:    []string{"Total_0_4"},
			Working:  []string{"Total_30_34"},
			Elderly:  []string{"Total_65_69"},
		},
		Score: config.ScoreConfig{
			Weights:      config.WeightsConfig{Demand: 0.5, Supply: 0.3, Access: 0.2},
			Access:       config.AccessConfig{MRT: 0.7, Bus: 0.3},
			ProjectedCRS: "EPSG:3414",
			Output:       filepath.Join(f.dir, "out", "hawker_opportunities.geojson"),
		},
	}
	return f
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	r := &fetcher.Resolver{TempDir: t.TempDir()}
	t.Cleanup(func() { _ = r.Close() })
	p := New(f.cfg, r)
	p.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return p
}
