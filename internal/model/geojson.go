package model

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature is a GeoJSON feature carrying the exported property set.
type Feature struct {
	Type       string          `json:"type"`
	Properties Properties      `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// FeatureCollection is the exported GeoJSON document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

var nullGeometry = json.RawMessage("null")

// NewFeatureCollection encodes subzones in order. A nil geometry is
// written as null.
func NewFeatureCollection(subzones []ScoredSubzone) (*FeatureCollection, error) {
	fc := &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(subzones)),
	}
	for i := range subzones {
		s := &subzones[i]
		g, err := EncodeGeometry(s.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "model: subzone %s", s.Subzone)
		}
		if g == nil {
			g = nullGeometry
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Properties: s.Properties(),
			Geometry:   g,
		})
	}
	return fc, nil
}

// EncodeFeatureCollection writes subzones as a GeoJSON FeatureCollection.
func EncodeFeatureCollection(w io.Writer, subzones []ScoredSubzone) error {
	fc, err := NewFeatureCollection(subzones)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return eris.Wrap(err, "model: encode feature collection")
	}
	return nil
}

type rawFeature struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Geometry   json.RawMessage            `json:"geometry"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// Property keys accepted on decode, in priority order. The upper-case and
// snake-case variants are written by older exports.
var (
	keysName         = []string{"name", "Name"}
	keysSubzone      = []string{"SUBZONE_N", "subzone", "subzone_id"}
	keysPlanningArea = []string{"PLN_AREA_N", "planning_area", "planarea"}
	keysHScore       = []string{"H_score", "h_score"}
	keysHRank        = []string{"H_rank", "h_rank"}
	keysDem          = []string{"Dem", "dem"}
	keysSup          = []string{"Sup", "sup"}
	keysAcc          = []string{"Acc", "acc"}
)

// DecodeFeatureCollection parses a FeatureCollection written by this
// package or by an older export. Unparseable numbers decode as zero.
func DecodeFeatureCollection(data []byte) ([]ScoredSubzone, error) {
	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "model: decode feature collection")
	}
	if raw.Type != "" && raw.Type != "FeatureCollection" {
		return nil, eris.Errorf("model: expected FeatureCollection, got %q", raw.Type)
	}

	out := make([]ScoredSubzone, 0, len(raw.Features))
	for i, f := range raw.Features {
		p := f.Properties
		s := ScoredSubzone{
			Name:         optString(p, keysName),
			Subzone:      firstString(p, keysSubzone),
			PlanningArea: firstString(p, keysPlanningArea),
			Population:   int64(firstNumber(p, "population")),
			Pop0To25:     int64(firstNumber(p, "pop_0_25")),
			Pop25To65:    int64(firstNumber(p, "pop_25_65")),
			Pop65Plus:    int64(firstNumber(p, "pop_65plus")),
			Hawker:       int(firstNumber(p, "hawker")),
			MRT:          int(firstNumber(p, "mrt")),
			Bus:          int(firstNumber(p, "bus")),
			HScore:       firstNumber(p, keysHScore...),
			HRank:        int(firstNumber(p, keysHRank...)),
			Dem:          firstNumber(p, keysDem...),
			Sup:          firstNumber(p, keysSup...),
			Acc:          firstNumber(p, keysAcc...),
		}
		g, err := DecodeGeometry(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "model: feature %d", i)
		}
		s.Geometry = g
		out = append(out, s)
	}
	return out, nil
}

// EncodeGeometry marshals g as a GeoJSON geometry. A nil geometry encodes
// to nil.
func EncodeGeometry(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "model: encode geometry")
	}
	return data, nil
}

// DecodeGeometry parses a GeoJSON geometry. Empty input and null decode
// to nil.
func DecodeGeometry(data []byte) (geom.T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, nullGeometry) {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "model: decode geometry")
	}
	return g, nil
}

func firstString(p map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if s := rawString(p[k]); s != "" {
			return s
		}
	}
	return ""
}

func optString(p map[string]json.RawMessage, keys []string) *string {
	if s := firstString(p, keys); s != "" {
		return &s
	}
	return nil
}

func firstNumber(p map[string]json.RawMessage, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := rawNumber(p[k]); ok {
			return v
		}
	}
	return 0
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func rawNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
