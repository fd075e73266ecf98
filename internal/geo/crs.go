// Package geo loads vector layers, reprojects them between WGS84 and SVY21
// and joins points to subzone polygons.
package geo

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// CRS identifies a coordinate reference system known to the pipeline.
type CRS struct {
	Code string
	Name string
	proj projection
}

// projection maps between lon/lat degrees (WGS84) and the CRS's native
// coordinates. A nil projection means the CRS is geographic WGS84.
type projection interface {
	forward(lon, lat float64) (x, y float64)
	inverse(x, y float64) (lon, lat float64)
}

// Geographic reports whether the CRS stores lon/lat degrees.
func (c CRS) Geographic() bool { return c.proj == nil }

func (c CRS) String() string { return c.Code }

// Equal compares by EPSG code.
func (c CRS) Equal(o CRS) bool { return c.Code == o.Code }

var (
	// WGS84 is EPSG:4326 in lon/lat axis order.
	WGS84 = CRS{Code: "EPSG:4326", Name: "WGS 84"}
	// SVY21 is EPSG:3414, the Singapore transverse Mercator grid.
	SVY21 = CRS{Code: "EPSG:3414", Name: "SVY21 / Singapore TM", proj: newSVY21()}
)

var crsAliases = map[string]CRS{
	"EPSG:4326":                     WGS84,
	"4326":                          WGS84,
	"WGS84":                         WGS84,
	"CRS84":                         WGS84,
	"OGC:CRS84":                     WGS84,
	"URN:OGC:DEF:CRS:OGC:1.3:CRS84": WGS84,
	"URN:OGC:DEF:CRS:OGC::CRS84":    WGS84,
	"URN:OGC:DEF:CRS:EPSG::4326":    WGS84,
	"URN:OGC:DEF:CRS:EPSG:6.6:4326": WGS84,
	"EPSG:3414":                     SVY21,
	"3414":                          SVY21,
	"SVY21":                         SVY21,
	"URN:OGC:DEF:CRS:EPSG::3414":    SVY21,
	"URN:OGC:DEF:CRS:EPSG:6.6:3414": SVY21,
	"HTTP://WWW.OPENGIS.NET/DEF/CRS/EPSG/0/4326": WGS84,
	"HTTP://WWW.OPENGIS.NET/DEF/CRS/EPSG/0/3414": SVY21,
}

// LookupCRS resolves an EPSG code, URN or common alias.
func LookupCRS(name string) (CRS, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if c, ok := crsAliases[key]; ok {
		return c, nil
	}
	return CRS{}, eris.Errorf("geo: unsupported CRS %q", name)
}

// CRSFromPRJ recognises the WKT found in a shapefile's .prj sidecar.
func CRSFromPRJ(wkt string) (CRS, bool) {
	up := strings.ToUpper(wkt)
	switch {
	case strings.Contains(up, "SVY21") || strings.Contains(up, `"3414"`):
		return SVY21, true
	case strings.HasPrefix(up, "GEOGCS") && strings.Contains(up, "WGS") && strings.Contains(up, "84"):
		return WGS84, true
	}
	return CRS{}, false
}

// Transform re-projects every coordinate of g from one CRS to another.
// The input is not modified.
func Transform(g geom.T, from, to CRS) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	if !supported(g) {
		return nil, eris.Errorf("geo: transform unsupported geometry %T", g)
	}
	if from.Equal(to) {
		return g, nil
	}
	if g.Layout() != geom.XY {
		return nil, eris.Errorf("geo: transform requires XY layout, got %v", g.Layout())
	}

	flat := make([]float64, len(g.FlatCoords()))
	src := g.FlatCoords()
	for i := 0; i+1 < len(src); i += 2 {
		lon, lat := src[i], src[i+1]
		if from.proj != nil {
			lon, lat = from.proj.inverse(src[i], src[i+1])
		}
		x, y := lon, lat
		if to.proj != nil {
			x, y = to.proj.forward(lon, lat)
		}
		flat[i], flat[i+1] = x, y
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(geom.XY, flat), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, flat), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(geom.XY, flat), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(geom.XY, flat, t.Ends()), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(geom.XY, flat, t.Endss()), nil
	default:
		return nil, eris.Errorf("geo: transform unsupported geometry %T", g)
	}
}

// supported reports whether g is one of the flat-coordinate types the
// loaders and joins handle.
func supported(g geom.T) bool {
	switch g.(type) {
	case *geom.Point, *geom.MultiPoint, *geom.LineString, *geom.Polygon, *geom.MultiPolygon:
		return true
	}
	return false
}

// svy21 implements the EPSG:3414 transverse Mercator on the WGS84 ellipsoid.
type svy21 struct {
	a, f, b, e2, e4, e6, n float64
	lat0, lon0             float64
	k0, fe, fn             float64
	a0, a2, a4, a6         float64
}

func newSVY21() *svy21 {
	s := &svy21{
		a:    6378137,
		f:    1 / 298.257223563,
		lat0: 1 + 22.0/60,
		lon0: 103 + 50.0/60,
		k0:   1.0,
		fe:   28001.642,
		fn:   38744.572,
	}
	s.b = s.a * (1 - s.f)
	s.e2 = 2*s.f - s.f*s.f
	s.e4 = s.e2 * s.e2
	s.e6 = s.e4 * s.e2
	s.n = (s.a - s.b) / (s.a + s.b)
	s.a0 = 1 - s.e2/4 - 3*s.e4/64 - 5*s.e6/256
	s.a2 = 3.0 / 8 * (s.e2 + s.e4/4 + 15*s.e6/128)
	s.a4 = 15.0 / 256 * (s.e4 + 3*s.e6/4)
	s.a6 = 35 * s.e6 / 3072
	return s
}

// meridian returns the meridional arc length to latitude lat (radians).
func (s *svy21) meridian(lat float64) float64 {
	return s.a * (s.a0*lat - s.a2*math.Sin(2*lat) + s.a4*math.Sin(4*lat) - s.a6*math.Sin(6*lat))
}

func (s *svy21) forward(lon, lat float64) (float64, float64) {
	latR := lat * math.Pi / 180
	sinLat := math.Sin(latR)
	sin2 := sinLat * sinLat
	cosLat := math.Cos(latR)
	cos2, cos3, cos4 := cosLat*cosLat, math.Pow(cosLat, 3), math.Pow(cosLat, 4)
	cos5, cos6, cos7 := math.Pow(cosLat, 5), math.Pow(cosLat, 6), math.Pow(cosLat, 7)

	rho := s.a * (1 - s.e2) / math.Pow(1-s.e2*sin2, 1.5)
	v := s.a / math.Sqrt(1-s.e2*sin2)
	psi := v / rho
	psi2, psi3, psi4 := psi*psi, psi*psi*psi, psi*psi*psi*psi
	t := math.Tan(latR)
	t2, t4, t6 := t*t, math.Pow(t, 4), math.Pow(t, 6)

	m := s.meridian(latR)
	m0 := s.meridian(s.lat0 * math.Pi / 180)

	w := (lon - s.lon0) * math.Pi / 180
	w2, w4, w6, w8 := w*w, math.Pow(w, 4), math.Pow(w, 6), math.Pow(w, 8)

	n1 := w2 / 2 * v * sinLat * cosLat
	n2 := w4 / 24 * v * sinLat * cos3 * (4*psi2 + psi - t2)
	n3 := w6 / 720 * v * sinLat * cos5 * (8*psi4*(11-24*t2) - 28*psi3*(1-6*t2) + psi2*(1-32*t2) - psi*2*t2 + t4)
	n4 := w8 / 40320 * v * sinLat * cos7 * (1385 - 3111*t2 + 543*t4 - t6)
	northing := s.fn + s.k0*(m-m0+n1+n2+n3+n4)

	e1 := w2 / 6 * cos2 * (psi - t2)
	e2 := w4 / 120 * cos4 * (4*psi3*(1-6*t2) + psi2*(1+8*t2) - psi*2*t2 + t4)
	e3 := w6 / 5040 * cos6 * (61 - 479*t2 + 179*t4 - t6)
	easting := s.fe + s.k0*v*w*cosLat*(1+e1+e2+e3)
	return easting, northing
}

func (s *svy21) inverse(x, y float64) (float64, float64) {
	nPrime := y - s.fn
	m0 := s.meridian(s.lat0 * math.Pi / 180)
	mPrime := m0 + nPrime/s.k0

	n, n2, n3, n4 := s.n, s.n*s.n, math.Pow(s.n, 3), math.Pow(s.n, 4)
	g := s.a * (1 - n) * (1 - n2) * (1 + 9*n2/4 + 225*n4/64) * (math.Pi / 180)
	sigma := mPrime * math.Pi / (180 * g)

	latPrime := sigma +
		(3*n/2-27*n3/32)*math.Sin(2*sigma) +
		(21*n2/16-55*n4/32)*math.Sin(4*sigma) +
		(151*n3/96)*math.Sin(6*sigma) +
		(1097*n4/512)*math.Sin(8*sigma)

	sinLatP := math.Sin(latPrime)
	sin2 := sinLatP * sinLatP
	rhoP := s.a * (1 - s.e2) / math.Pow(1-s.e2*sin2, 1.5)
	vP := s.a / math.Sqrt(1-s.e2*sin2)
	psiP := vP / rhoP
	psiP2, psiP3, psiP4 := psiP*psiP, math.Pow(psiP, 3), math.Pow(psiP, 4)
	tP := math.Tan(latPrime)
	tP2, tP4, tP6 := tP*tP, math.Pow(tP, 4), math.Pow(tP, 6)

	ePrime := x - s.fe
	xx := ePrime / (s.k0 * vP)
	x3, x5, x7 := math.Pow(xx, 3), math.Pow(xx, 5), math.Pow(xx, 7)

	latFactor := tP / (s.k0 * rhoP)
	latTerm1 := latFactor * (ePrime * xx / 2)
	latTerm2 := latFactor * (ePrime * x3 / 24) * (-4*psiP2 + 9*psiP*(1-tP2) + 12*tP2)
	latTerm3 := latFactor * (ePrime * x5 / 720) *
		(8*psiP4*(11-24*tP2) - 12*psiP3*(21-71*tP2) + 15*psiP2*(15-98*tP2+15*tP4) + 180*psiP*(5*tP2-3*tP4) + 360*tP4)
	latTerm4 := latFactor * (ePrime * x7 / 40320) * (1385 - 3633*tP2 + 4095*tP4 + 1575*tP6)
	lat := latPrime - latTerm1 + latTerm2 - latTerm3 + latTerm4

	secLatP := 1 / math.Cos(latPrime)
	lonTerm1 := xx * secLatP
	lonTerm2 := x3 * secLatP / 6 * (psiP + 2*tP2)
	lonTerm3 := x5 * secLatP / 120 * (-4*psiP3*(1-6*tP2) + psiP2*(9-68*tP2) + 72*psiP*tP2 + 24*tP4)
	lonTerm4 := x7 * secLatP / 5040 * (61 + 662*tP2 + 1320*tP4 + 720*tP6)
	lon := s.lon0*math.Pi/180 + lonTerm1 - lonTerm2 + lonTerm3 - lonTerm4
	return lon * 180 / math.Pi, lat * 180 / math.Pi
}
