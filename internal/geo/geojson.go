package geo

import (
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ReadGeoJSON reads a GeoJSON file holding a single input geometry in
// geographic coordinates. A Feature or bare geometry is accepted directly; a
// FeatureCollection must contain exactly one feature. Altitudes are dropped.
func ReadGeoJSON(path string) (geom.T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read %s", path)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON parses GeoJSON bytes into a single go-geom geometry.
func ParseGeoJSON(data []byte) (geom.T, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		if len(fc.Features) > 1 {
			return nil, eris.Errorf("geo: expected a single feature, got %d", len(fc.Features))
		}
		return FromGeoJSONGeometry(fc.Features[0].Geometry)
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return FromGeoJSONGeometry(f.Geometry)
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse GeoJSON")
	}
	return FromGeoJSONGeometry(g)
}

// FromGeoJSONGeometry converts a GeoJSON geometry to the go-geom model.
func FromGeoJSONGeometry(g *geojson.Geometry) (geom.T, error) {
	if g == nil {
		return nil, eris.New("geo: nil GeoJSON geometry")
	}

	switch {
	case g.IsPoint():
		return geom.NewPointFlat(geom.XY, xy(g.Point)), nil
	case g.IsLineString():
		return geom.NewLineStringFlat(geom.XY, flatten1(g.LineString)), nil
	case g.IsPolygon():
		flat, ends := flatten2(g.Polygon)
		return geom.NewPolygonFlat(geom.XY, flat, ends), nil
	case g.IsMultiPolygon():
		flat, endss := flatten3(g.MultiPolygon)
		return geom.NewMultiPolygonFlat(geom.XY, flat, endss), nil
	default:
		return nil, eris.Errorf("geo: unsupported GeoJSON geometry type %q", g.Type)
	}
}

// ToGeoJSONGeometry converts a polygonal go-geom geometry to GeoJSON.
func ToGeoJSONGeometry(g geom.T) (*geojson.Geometry, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return geojson.NewPolygonGeometry(polygonCoords(t)), nil
	case *geom.MultiPolygon:
		polys := make([][][][]float64, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, polygonCoords(t.Polygon(i)))
		}
		return geojson.NewMultiPolygonGeometry(polys...), nil
	default:
		return nil, eris.Errorf("geo: cannot export geometry type %T to GeoJSON", g)
	}
}

func polygonCoords(p *geom.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		flat := ring.FlatCoords()
		stride := ring.Stride()
		coords := make([][]float64, 0, len(flat)/stride)
		for j := 0; j+1 < len(flat); j += stride {
			coords = append(coords, []float64{flat[j], flat[j+1]})
		}
		rings = append(rings, coords)
	}
	return rings
}

func xy(c []float64) []float64 {
	if len(c) < 2 {
		return []float64{0, 0}
	}
	return []float64{c[0], c[1]}
}

func flatten1(coords [][]float64) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, xy(c)...)
	}
	return flat
}

func flatten2(rings [][][]float64) ([]float64, []int) {
	var flat []float64
	ends := make([]int, 0, len(rings))
	for _, ring := range rings {
		flat = append(flat, flatten1(ring)...)
		ends = append(ends, len(flat))
	}
	return flat, ends
}

func flatten3(polys [][][][]float64) ([]float64, [][]int) {
	var flat []float64
	endss := make([][]int, 0, len(polys))
	for _, rings := range polys {
		ends := make([]int, 0, len(rings))
		for _, ring := range rings {
			flat = append(flat, flatten1(ring)...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}
	return flat, endss
}
