package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/hscore/internal/config"
	"github.com/sells-group/hscore/internal/geo"
)

// LayerGeoJSON loads one input layer and re-encodes it as a WGS84
// FeatureCollection with its raw attributes as properties. Shapefile and
// SVY21 sources come out in the same shape as the GeoJSON ones.
func LayerGeoJSON(ctx context.Context, r Localizer, lc config.LayerConfig) ([]byte, error) {
	if lc.Path == "" {
		return nil, eris.New("pipeline: no source configured")
	}
	spec, err := layerSpec(lc)
	if err != nil {
		return nil, err
	}
	path, err := r.Localize(ctx, lc.Path)
	if err != nil {
		return nil, err
	}
	layer, err := geo.LoadLayer(path, spec)
	if err != nil {
		return nil, err
	}
	layer, err = layer.Reproject(geo.WGS84)
	if err != nil {
		return nil, err
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, layer.Len())}
	for _, f := range layer.Features {
		if f.Geometry == nil {
			continue
		}
		props := make(map[string]interface{}, len(f.Attrs))
		for k, v := range f.Attrs {
			props[k] = v
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: f.Geometry, Properties: props})
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: encode layer %s", lc.Path)
	}
	return data, nil
}
