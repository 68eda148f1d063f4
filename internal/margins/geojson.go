package margins

import (
	"encoding/json"
	"io"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/geo"
)

// WriteGeoJSON writes the layer set as a FeatureCollection with one feature
// per layer, tagged by a "name" property. This is the format the analysis
// step consumes.
func WriteGeoJSON(w io.Writer, ls *LayerSet) error {
	fc := geojson.NewFeatureCollection()
	log := zap.L().With(zap.String("component", "margins"))

	for _, layer := range Layers() {
		g := ls.Get(layer)
		if g == nil {
			continue
		}
		// An unbuffered point or line source never becomes a polygon;
		// the layer is skipped rather than failing the export.
		if !geo.IsPolygonal(g) {
			log.Warn("layer has no polygons, skipping", zap.String("layer", string(layer)))
			continue
		}

		t, err := geo.GeomFromGeos(g)
		if err != nil {
			return err
		}
		gj, err := geo.ToGeoJSONGeometry(t)
		if err != nil {
			return err
		}

		f := geojson.NewFeature(gj)
		f.SetProperty("name", string(layer))
		fc.AddFeature(f)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return eris.Wrap(err, "margins: encode GeoJSON")
	}
	return nil
}

// ReadLayers extracts the named safety layers from a margins GeoJSON file.
// Features sharing a layer name are unioned; non-polygonal features are
// skipped with a warning. Returns an error only when no layer at all can be
// extracted.
func ReadLayers(path string) (*LayerSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "margins: read %s", path)
	}
	return ParseLayers(data)
}

// ParseLayers extracts the named safety layers from GeoJSON bytes.
func ParseLayers(data []byte) (*LayerSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "margins: parse FeatureCollection")
	}

	log := zap.L().With(zap.String("component", "margins"))
	ls := &LayerSet{}
	found := 0

	for _, layer := range Layers() {
		var merged *geos.Geom

		for _, f := range fc.Features {
			name, nameErr := f.PropertyString("name")
			if nameErr != nil || name != string(layer) {
				continue
			}

			t, convErr := geo.FromGeoJSONGeometry(f.Geometry)
			if convErr != nil {
				log.Warn("skipping unreadable feature", zap.String("layer", name), zap.Error(convErr))
				continue
			}
			g, convErr := geo.GeosFromGeom(t)
			if convErr != nil {
				log.Warn("skipping unreadable feature", zap.String("layer", name), zap.Error(convErr))
				continue
			}
			if !geo.IsPolygonal(g) {
				log.Warn("layer feature has no polygons", zap.String("layer", name))
				continue
			}

			if merged == nil {
				merged = g
			} else {
				merged = merged.Union(g)
			}
		}

		if merged == nil {
			log.Warn("layer not found", zap.String("layer", string(layer)))
			continue
		}
		ls.set(layer, merged)
		found++
	}

	if found == 0 {
		return nil, eris.New("margins: no valid layers found")
	}
	return ls, nil
}
