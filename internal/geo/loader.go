package geo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Feature is one decoded input feature. Attrs holds the raw property
// values rendered as strings; absent or null properties are not present.
type Feature struct {
	Geometry geom.T
	Attrs    map[string]string
}

// Attr returns the property value for key (exact match first, then
// case-insensitive) trimmed of surrounding whitespace.
func (f Feature) Attr(key string) (string, bool) {
	if v, ok := f.Attrs[key]; ok {
		return strings.TrimSpace(v), true
	}
	for k, v := range f.Attrs {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// Layer is a set of features sharing one CRS.
type Layer struct {
	Source   string
	CRS      CRS
	Features []Feature
}

// LayerSpec controls how a layer's CRS is decided. DefaultCRS applies when
// the file does not declare one; Force ignores whatever the file declares.
type LayerSpec struct {
	DefaultCRS CRS
	Force      bool
}

// EmptyLayer returns a layer with no features.
func EmptyLayer(crs CRS) *Layer {
	return &Layer{CRS: crs}
}

// Len returns the number of features.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// Reproject returns a copy of the layer with every geometry transformed to crs.
func (l *Layer) Reproject(crs CRS) (*Layer, error) {
	if l.CRS.Equal(crs) {
		return l, nil
	}
	out := &Layer{Source: l.Source, CRS: crs, Features: make([]Feature, 0, len(l.Features))}
	for i, f := range l.Features {
		g, err := Transform(f.Geometry, l.CRS, crs)
		if err != nil {
			zap.L().Warn("geo: dropping feature that cannot be reprojected",
				zap.String("source", l.Source), zap.Int("index", i), zap.Error(err))
			continue
		}
		out.Features = append(out.Features, Feature{Geometry: g, Attrs: f.Attrs})
	}
	return out, nil
}

// LoadLayer reads a GeoJSON (.geojson, .json) or shapefile (.shp) layer.
func LoadLayer(path string, spec LayerSpec) (*Layer, error) {
	log := zap.L().With(zap.String("component", "geo.loader"), zap.String("path", path))

	var (
		layer    *Layer
		declared string
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		layer, declared, err = loadGeoJSON(path)
	case ".shp":
		layer, declared, err = loadShapefile(path)
	default:
		return nil, eris.Errorf("geo: unsupported layer format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	layer.Source = path

	switch {
	case spec.Force || declared == "":
		layer.CRS = spec.DefaultCRS
	default:
		c, err := LookupCRS(declared)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: layer %s", path)
		}
		layer.CRS = c
	}

	log.Debug("layer loaded",
		zap.Int("features", len(layer.Features)),
		zap.String("crs", layer.CRS.Code),
		zap.String("declared_crs", declared),
	)
	return layer, nil
}

// geojsonCRS probes the legacy "crs" member that RFC 7946 dropped but
// older exports still carry.
type geojsonCRS struct {
	CRS *geojson.CRS `json:"crs"`
}

func loadGeoJSON(path string) (*Layer, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "geo: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, "", eris.Wrapf(err, "geo: decode %s", path)
	}

	var declared string
	var probe geojsonCRS
	if err := json.Unmarshal(data, &probe); err == nil && probe.CRS != nil {
		if name, ok := probe.CRS.Properties["name"].(string); ok {
			declared = name
		}
	}

	layer := &Layer{Features: make([]Feature, 0, len(fc.Features))}
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		g, err := forceXY(f.Geometry)
		if err != nil {
			zap.L().Debug("geo: skipping feature with unsupported geometry",
				zap.String("path", path), zap.Int("index", i), zap.Error(err))
			continue
		}
		layer.Features = append(layer.Features, Feature{
			Geometry: g,
			Attrs:    stringifyProperties(f.Properties),
		})
	}
	return layer, declared, nil
}

func stringifyProperties(props map[string]interface{}) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// forceXY drops Z and M ordinates. Nil and empty geometries pass through
// as nil; types other than points, line strings and polygons are rejected.
func forceXY(g geom.T) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	if !supported(g) {
		return nil, eris.Errorf("geo: unsupported geometry %T", g)
	}
	if g.Empty() {
		return nil, nil
	}
	if g.Layout() == geom.XY {
		return g, nil
	}
	stride := g.Stride()
	src := g.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		flat = append(flat, src[i], src[i+1])
	}
	rescale := func(ends []int) []int {
		out := make([]int, len(ends))
		for i, e := range ends {
			out[i] = e / stride * 2
		}
		return out
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(geom.XY, flat), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flat), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(geom.XY, flat), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(geom.XY, flat, rescale(t.Ends())), nil
	case *geom.MultiPolygon:
		endss := make([][]int, len(t.Endss()))
		for i, ends := range t.Endss() {
			endss[i] = rescale(ends)
		}
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
	default:
		return nil, eris.Errorf("geo: unsupported geometry %T", g)
	}
}

func loadShapefile(path string) (*Layer, string, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var declared string
	prjPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if prj, err := os.ReadFile(prjPath); err == nil {
		if c, ok := CRSFromPRJ(string(prj)); ok {
			declared = c.Code
		} else {
			zap.L().Warn("geo: unrecognised .prj, using configured CRS", zap.String("path", prjPath))
		}
	}

	fields := reader.Fields()
	layer := &Layer{}
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			continue
		}
		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			attrs[f.String()] = strings.TrimSpace(reader.Attribute(i))
		}
		layer.Features = append(layer.Features, Feature{Geometry: g, Attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, "", eris.Wrapf(err, "geo: read shapefile %s", path)
	}
	return layer, declared, nil
}

func shapeToGeom(s shp.Shape) geom.T {
	switch shape := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{shape.X, shape.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{shape.X, shape.Y})
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{shape.X, shape.Y})
	case *shp.Polygon:
		return ringsToPolygon(shape.Parts, shape.Points)
	case *shp.PolygonZ:
		return ringsToPolygon(shape.Parts, shape.Points)
	case *shp.PolygonM:
		return ringsToPolygon(shape.Parts, shape.Points)
	default:
		return nil
	}
}

// ringsToPolygon assembles shapefile rings into polygons. Outer rings are
// clockwise, holes counter-clockwise; each hole joins the outer ring that
// contains its first vertex, or the most recent outer ring.
func ringsToPolygon(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	type poly struct {
		shell []float64
		holes [][]float64
	}
	var polys []*poly
	var orphanHoles [][]float64

	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if end-start < 4 {
			continue
		}
		ring := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			ring = append(ring, points[j].X, points[j].Y)
		}

		if xy.SignedArea(geom.XY, ring) >= 0 {
			polys = append(polys, &poly{shell: ring})
			continue
		}

		owner := -1
		pt := geom.Coord{ring[0], ring[1]}
		for k := len(polys) - 1; k >= 0; k-- {
			if xy.IsPointInRing(geom.XY, pt, polys[k].shell) {
				owner = k
				break
			}
		}
		if owner < 0 && len(polys) > 0 {
			owner = len(polys) - 1
		}
		if owner < 0 {
			orphanHoles = append(orphanHoles, ring)
			continue
		}
		polys[owner].holes = append(polys[owner].holes, ring)
	}

	// Counter-clockwise rings with no shell are treated as shells; some
	// writers ignore the winding convention.
	for _, ring := range orphanHoles {
		polys = append(polys, &poly{shell: ring})
	}
	if len(polys) == 0 {
		return nil
	}

	var flat []float64
	endss := make([][]int, 0, len(polys))
	for _, p := range polys {
		var ends []int
		flat = append(flat, p.shell...)
		ends = append(ends, len(flat))
		for _, h := range p.holes {
			flat = append(flat, h...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}

	if len(endss) == 1 {
		return geom.NewPolygonFlat(geom.XY, flat, endss[0])
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}
