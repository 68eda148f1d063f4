// Package geo holds the geometry plumbing shared by the margins generator and
// the exposure aggregator: CRS transforms, GeoJSON and shapefile bridges, and
// conversions between the go-geom coordinate model and the GEOS engine.
package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// GeosFromGeom converts a go-geom geometry to a GEOS geometry via WKB.
func GeosFromGeom(g geom.T) (*geos.Geom, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal WKB")
	}

	gg, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: parse WKB")
	}
	return gg, nil
}

// GeomFromGeos converts a GEOS geometry back to the go-geom model.
func GeomFromGeos(g *geos.Geom) (geom.T, error) {
	t, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "geo: unmarshal WKB")
	}
	return t, nil
}

// IsPolygonal reports whether the geometry is a Polygon or MultiPolygon.
func IsPolygonal(g *geos.Geom) bool {
	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return true
	default:
		return false
	}
}

// DecomposePolygons flattens a Polygon, MultiPolygon or collection into its
// simple polygons. Non-polygonal members are dropped. Both the exporter and
// the aggregator treat polygonal geometry uniformly through this one
// operation.
func DecomposePolygons(g *geos.Geom) []*geos.Geom {
	if g == nil || g.IsEmpty() {
		return nil
	}

	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return []*geos.Geom{g}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		var polys []*geos.Geom
		for i := 0; i < g.NumGeometries(); i++ {
			polys = append(polys, DecomposePolygons(g.Geometry(i))...)
		}
		return polys
	default:
		return nil
	}
}

// Bounds returns the bounding box of a GEOS geometry as minX, minY, maxX, maxY.
func Bounds(g *geos.Geom) (float64, float64, float64, float64) {
	b := g.Bounds()
	return b.MinX, b.MinY, b.MaxX, b.MaxY
}
