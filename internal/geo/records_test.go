package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(x0, y0, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x0, y0, x0 + size, y0, x0 + size, y0 + size, x0, y0 + size, x0, y0,
	}, []int{10})
}

func TestZonesFromLayer_StructuredColumns(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: square(0, 0, 1), Attrs: map[string]string{"Name": "kml_1", "SUBZONE_N": " marina south ", "PLN_AREA_N": "Marina South"}},
	}}

	zones := ZonesFromLayer(layer)
	require.Len(t, zones, 1)
	require.NotNil(t, zones[0].Name)
	assert.Equal(t, "kml_1", *zones[0].Name)
	assert.Equal(t, "MARINA SOUTH", zones[0].Subzone)
	assert.Equal(t, "MARINA SOUTH", zones[0].PlanningArea)
	assert.Equal(t, ZoneKey{"MARINA SOUTH", "MARINA SOUTH"}, zones[0].Key())
}

func TestZonesFromLayer_DescriptionFallback(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: square(0, 0, 1), Attrs: map[string]string{"Description": subzoneDescription}},
		// Partially populated: planning area missing from columns.
		{Geometry: square(1, 0, 1), Attrs: map[string]string{
			"SUBZONE_N":   "STRAITS VIEW",
			"Description": `<table><tr><th>PLN_AREA_N</th><td>straits view</td></tr></table>`,
		}},
	}}

	zones := ZonesFromLayer(layer)
	require.Len(t, zones, 2)
	assert.Nil(t, zones[0].Name)
	assert.Equal(t, "MARINA SOUTH", zones[0].Subzone)
	assert.Equal(t, "MARINA SOUTH", zones[0].PlanningArea)
	assert.Equal(t, "STRAITS VIEW", zones[1].Subzone)
	assert.Equal(t, "STRAITS VIEW", zones[1].PlanningArea)
}

func TestZonesFromLayer_SkipsUnkeyedAndNonAreal(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: square(0, 0, 1), Attrs: map[string]string{}},
		{Geometry: geom.NewPointFlat(geom.XY, []float64{0, 0}), Attrs: map[string]string{"SUBZONE_N": "A"}},
		{Geometry: nil, Attrs: map[string]string{"SUBZONE_N": "B"}},
		{Geometry: square(0, 0, 1), Attrs: map[string]string{"SUBZONE_N": "C", "PLN_AREA_N": "X"}},
	}}

	zones := ZonesFromLayer(layer)
	require.Len(t, zones, 1)
	assert.Equal(t, "C", zones[0].Subzone)
}

func TestZonesFromLayer_MergesDuplicates(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: square(0, 0, 1), Attrs: map[string]string{"SUBZONE_N": "A", "PLN_AREA_N": "P"}},
		{Geometry: square(5, 5, 1), Attrs: map[string]string{"SUBZONE_N": "a", "PLN_AREA_N": "Q"}},
	}}

	zones := ZonesFromLayer(layer)
	require.Len(t, zones, 1)
	assert.Equal(t, "P", zones[0].PlanningArea)
	mp, ok := zones[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestExitsFromLayer(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: geom.NewPointFlat(geom.XY, []float64{1, 1}), Attrs: map[string]string{"STATION_NA": " RAFFLES PLACE MRT STATION "}},
		{Geometry: geom.NewPointFlat(geom.XY, []float64{2, 2}), Attrs: map[string]string{
			"Description": `<table><tr><th>STATION_NA</th><td>DHOBY GHAUT MRT STATION</td></tr><tr><th>EXIT_CODE</th><td>Exit A</td></tr></table>`,
		}},
		{Geometry: geom.NewPointFlat(geom.XY, []float64{3, 3}), Attrs: map[string]string{}},
	}}

	exits := ExitsFromLayer(layer)
	require.Len(t, exits, 3)
	assert.Equal(t, "RAFFLES PLACE MRT STATION", exits[0].Station)
	assert.Equal(t, "DHOBY GHAUT MRT STATION", exits[1].Station)
	assert.Equal(t, "", exits[2].Station)
}

func TestPointsFromLayer(t *testing.T) {
	layer := &Layer{Features: []Feature{
		{Geometry: geom.NewPointFlat(geom.XY, []float64{1, 1})},
		{Geometry: geom.NewMultiPointFlat(geom.XY, []float64{2, 2, 3, 3})},
		{Geometry: square(0, 0, 1)},
		{Geometry: nil},
	}}
	assert.Len(t, PointsFromLayer(layer), 3)
	assert.Empty(t, PointsFromLayer(EmptyLayer(WGS84)))
}
