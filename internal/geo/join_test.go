package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func pt(x, y float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{x, y})
}

func testZones() []Zone {
	return []Zone{
		{Subzone: "A", PlanningArea: "P", Geometry: square(0, 0, 10)},
		{Subzone: "B", PlanningArea: "P", Geometry: square(10, 0, 10)},
		{Subzone: "C", PlanningArea: "Q", Geometry: geom.NewPolygonFlat(geom.XY, []float64{
			20, 0, 40, 0, 40, 20, 20, 20, 20, 0,
			25, 5, 25, 15, 35, 15, 35, 5, 25, 5,
		}, []int{10, 20})},
	}
}

func TestMatch_Predicates(t *testing.T) {
	ix := NewPolygonIndex(testZones())

	tests := []struct {
		name string
		pt   *geom.Point
		pred Predicate
		want []ZoneKey
	}{
		{"interior intersects", pt(5, 5), Intersects, []ZoneKey{{"A", "P"}}},
		{"interior within", pt(5, 5), Within, []ZoneKey{{"A", "P"}}},
		{"outer edge intersects", pt(0, 5), Intersects, []ZoneKey{{"A", "P"}}},
		{"outer edge within", pt(0, 5), Within, nil},
		{"inside hole", pt(30, 10), Intersects, nil},
		{"hole boundary intersects", pt(25, 10), Intersects, []ZoneKey{{"C", "Q"}}},
		{"hole boundary within", pt(25, 10), Within, nil},
		{"outside all", pt(-5, -5), Intersects, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ix.Match(tt.pt, tt.pred))
		})
	}
}

func TestMatch_SharedBoundary(t *testing.T) {
	ix := NewPolygonIndex(testZones())
	keys := ix.Match(pt(10, 5), Intersects)
	assert.ElementsMatch(t, []ZoneKey{{"A", "P"}, {"B", "P"}}, keys)
	assert.Empty(t, ix.Match(pt(10, 5), Within))
}

func TestCountPoints(t *testing.T) {
	ix := NewPolygonIndex(testZones())
	counts := ix.CountPoints([]*geom.Point{pt(1, 1), pt(2, 2), pt(15, 5), pt(30, 10), nil}, Intersects)

	assert.Equal(t, 2, counts[ZoneKey{"A", "P"}])
	assert.Equal(t, 1, counts[ZoneKey{"B", "P"}])
	_, ok := counts[ZoneKey{"C", "Q"}]
	assert.False(t, ok)
}

func TestCountPoints_Empty(t *testing.T) {
	ix := NewPolygonIndex(testZones())
	assert.Empty(t, ix.CountPoints(nil, Intersects))
}

func TestCountStations_DistinctNames(t *testing.T) {
	ix := NewPolygonIndex(testZones())
	stations := []Station{
		{Name: "RAFFLES PLACE", Point: pt(1, 1)},
		{Name: "RAFFLES PLACE", Point: pt(2, 2)},
		{Name: "CITY HALL", Point: pt(3, 3)},
		{Name: "EDGE", Point: pt(10, 5)},
		{Name: "TANJONG PAGAR", Point: pt(15, 5)},
		{Name: "OUTRAM", Point: pt(15, 15)},
	}
	counts := ix.CountStations(stations, Within)

	assert.Equal(t, 2, counts[ZoneKey{"A", "P"}])
	assert.Equal(t, 1, counts[ZoneKey{"B", "P"}])
}

func TestNewPolygonIndex_SkipsEmpty(t *testing.T) {
	ix := NewPolygonIndex([]Zone{{Subzone: "X"}, {Subzone: "Y", Geometry: square(0, 0, 1)}})
	assert.Equal(t, []ZoneKey{{"Y", ""}}, ix.Match(pt(0.5, 0.5), Within))
}

func TestPredicateString(t *testing.T) {
	assert.Equal(t, "intersects", Intersects.String())
	assert.Equal(t, "within", Within.String())
	assert.Equal(t, "unknown", Predicate(9).String())
}
