package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func strPtr(s string) *string { return &s }

func sampleSubzones() []ScoredSubzone {
	return []ScoredSubzone{
		{
			Name:         strPtr("MARINA SOUTH"),
			Subzone:      "MARINA SOUTH",
			PlanningArea: "MARINA SOUTH",
			Population:   120,
			Pop0To25:     20,
			Pop25To65:    80,
			Pop65Plus:    20,
			Hawker:       1,
			MRT:          2,
			Bus:          3,
			HScore:       0.75,
			HRank:        1,
			Dem:          1.2,
			Sup:          -0.5,
			Acc:          0.3,
			Geometry: geom.NewPolygonFlat(geom.XY, []float64{
				103.86, 1.27, 103.87, 1.27, 103.87, 1.28, 103.86, 1.27,
			}, []int{8}),
		},
		{Subzone: "ORPHAN", HScore: 0.5, HRank: 2},
	}
}

func TestEncodeFeatureCollection_PropertyOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeFeatureCollection(&buf, sampleSubzones()))

	out := buf.String()
	order := []string{
		`"name"`, `"subzone"`, `"planarea"`, `"population"`, `"pop_0_25"`, `"pop_25_65"`,
		`"pop_65plus"`, `"hawker"`, `"mrt"`, `"bus"`, `"H_score"`, `"H_rank"`, `"Dem"`, `"Sup"`, `"Acc"`,
	}
	first := out[:strings.Index(out, `"geometry"`)]
	last := -1
	for _, key := range order {
		idx := strings.Index(first, key)
		require.GreaterOrEqual(t, idx, 0, key)
		assert.Greater(t, idx, last, key)
		last = idx
	}
	assert.Contains(t, out, `"name":null`)
	assert.Contains(t, out, `"geometry":null`)
}

func TestEncodeFeatureCollection_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeFeatureCollection(&buf, nil))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, buf.String())
}

func TestDecodeFeatureCollection_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := sampleSubzones()
	require.NoError(t, EncodeFeatureCollection(&buf, in))

	out, err := DecodeFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, in[0].Properties(), out[0].Properties())
	require.NotNil(t, out[0].Geometry)
	assert.Equal(t, in[0].Geometry.FlatCoords(), out[0].Geometry.FlatCoords())
	assert.Nil(t, out[1].Name)
	assert.Nil(t, out[1].Geometry)
}

func TestDecodeFeatureCollection_LegacyKeys(t *testing.T) {
	data := `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {
				"SUBZONE_N": "API_TEST",
				"planning_area": "TEST",
				"population": "1234",
				"hawker": 2,
				"h_score": 0.42,
				"h_rank": 7,
				"Dem": "bad"
			},
			"geometry": {"type": "Point", "coordinates": [103.8, 1.3]}
		}]
	}`
	out, err := DecodeFeatureCollection([]byte(data))
	require.NoError(t, err)
	require.Len(t, out, 1)

	s := out[0]
	assert.Equal(t, "API_TEST", s.Subzone)
	assert.Equal(t, "TEST", s.PlanningArea)
	assert.Equal(t, int64(1234), s.Population)
	assert.Equal(t, 2, s.Hawker)
	assert.Equal(t, 0.42, s.HScore)
	assert.Equal(t, 7, s.HRank)
	assert.Equal(t, 0.0, s.Dem)
	assert.Equal(t, "API_TEST", s.DisplayName())
}

func TestDecodeFeatureCollection_Errors(t *testing.T) {
	_, err := DecodeFeatureCollection([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeFeatureCollection([]byte(`{"type":"Feature"}`))
	assert.ErrorContains(t, err, "expected FeatureCollection")

	_, err = DecodeFeatureCollection([]byte(`{"type":"FeatureCollection","features":[{"properties":{},"geometry":{"type":"Blob"}}]}`))
	assert.Error(t, err)
}

func TestFeatureCollection_IsValidJSON(t *testing.T) {
	fc, err := NewFeatureCollection(sampleSubzones())
	require.NoError(t, err)
	data, err := json.Marshal(fc)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "FeatureCollection", generic["type"])
}

func TestRankLabel(t *testing.T) {
	assert.Equal(t, "3/332", RankLabel(3, 332))
}
