package geo

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	proj "github.com/twpayne/go-proj/v11"
)

// CRS identifies one of the three coordinate reference systems the pipeline
// moves geometry between. All exchanged geometry is Geographic; all buffer
// distances are applied in Metric; all areas are measured in EqualArea.
type CRS int

const (
	// Geographic is WGS84 lon/lat (EPSG:4326).
	Geographic CRS = iota
	// Metric is SIRGAS 2000 / UTM zone 23S (EPSG:31983), units in meters.
	Metric
	// EqualArea is the Albers equal-area projection for Brazil used by the
	// census statistical grid, units in meters.
	EqualArea
)

const (
	projGeographic = "+proj=longlat +datum=WGS84 +no_defs +type=crs"
	projMetric     = "+proj=utm +zone=23 +south +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs +type=crs"
	projEqualArea  = "+proj=aea +lat_0=-12 +lon_0=-54 +lat_1=-2 +lat_2=-22 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs +type=crs"
)

// Reprojector transforms geometries between the pipeline CRSs. PROJ handles
// are not safe for concurrent use, so all transforms hold a mutex.
type Reprojector struct {
	mu        sync.Mutex
	metric    *proj.PJ // geographic <-> metric
	equalArea *proj.PJ // geographic <-> equal-area
}

// NewReprojector builds the transformation pair used by the pipeline.
func NewReprojector() (*Reprojector, error) {
	metric, err := proj.NewCRSToCRS(projGeographic, projMetric, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geo: build geographic->metric transformation")
	}

	equalArea, err := proj.NewCRSToCRS(projGeographic, projEqualArea, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geo: build geographic->equal-area transformation")
	}

	return &Reprojector{metric: metric, equalArea: equalArea}, nil
}

// Transform reprojects a go-geom geometry from one CRS to another.
func (r *Reprojector) Transform(g geom.T, from, to CRS) (geom.T, error) {
	if from == to {
		return g, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Projected CRSs are linked through the geographic one.
	if from != Geographic && to != Geographic {
		mid, err := r.applyLocked(g, from, Geographic)
		if err != nil {
			return nil, err
		}
		return r.applyLocked(mid, Geographic, to)
	}

	return r.applyLocked(g, from, to)
}

// TransformGeos reprojects a GEOS geometry, round-tripping through go-geom.
func (r *Reprojector) TransformGeos(g *geos.Geom, from, to CRS) (*geos.Geom, error) {
	if from == to {
		return g, nil
	}

	t, err := GeomFromGeos(g)
	if err != nil {
		return nil, err
	}

	t, err = r.Transform(t, from, to)
	if err != nil {
		return nil, err
	}

	return GeosFromGeom(t)
}

func (r *Reprojector) applyLocked(g geom.T, from, to CRS) (geom.T, error) {
	var pj *proj.PJ
	var inverse bool

	switch {
	case from == Geographic && to == Metric:
		pj = r.metric
	case from == Metric && to == Geographic:
		pj, inverse = r.metric, true
	case from == Geographic && to == EqualArea:
		pj = r.equalArea
	case from == EqualArea && to == Geographic:
		pj, inverse = r.equalArea, true
	default:
		return nil, eris.Errorf("geo: unsupported CRS pair %d -> %d", from, to)
	}

	return mapCoords(g, func(x, y float64) (float64, float64, error) {
		var out proj.Coord
		var err error
		if inverse {
			out, err = pj.Inverse(proj.NewCoord(x, y, 0, 0))
		} else {
			out, err = pj.Forward(proj.NewCoord(x, y, 0, 0))
		}
		if err != nil {
			return 0, 0, eris.Wrap(err, "geo: transform coordinate")
		}
		return out.X(), out.Y(), nil
	})
}

// mapCoords rebuilds a geometry with every vertex passed through f.
func mapCoords(g geom.T, f func(x, y float64) (float64, float64, error)) (geom.T, error) {
	flat := g.FlatCoords()
	stride := g.Stride()

	out := make([]float64, len(flat))
	copy(out, flat)
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := f(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		out[i], out[i+1] = x, y
	}

	layout := g.Layout()
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(layout, out), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(layout, out), nil
	case *geom.LinearRing:
		return geom.NewLinearRingFlat(layout, out), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(layout, out, t.Ends()), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(layout, out), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(layout, out, t.Ends()), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(layout, out, t.Endss()), nil
	default:
		return nil, eris.Errorf("geo: unsupported geometry type %T", g)
	}
}
