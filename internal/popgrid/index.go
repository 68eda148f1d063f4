package popgrid

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/geo"
)

// Quadrant is one tile of the coarse 500 km index. Its geometry covers many
// grid cells and is used only to decide which shards to fetch.
type Quadrant struct {
	ID   int
	Geom *geos.Geom // geographic
}

// Index is the coarse spatial index over the full data domain. It is loaded
// once and cached for the process lifetime; its footprint is small and
// invariant for a given data release.
type Index struct {
	quadrants []Quadrant
}

// LoadIndex fetches (or reuses) the quadrant index archive and parses it.
// The index shapefile ships in the grid's equal-area projection and is
// reprojected to geographic coordinates for intersection with query polygons.
func LoadIndex(ctx context.Context, fetcher *Fetcher, reproj *geo.Reprojector) (*Index, error) {
	shpPath, err := fetcher.FetchIndex(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "popgrid: fetch quadrant index")
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "popgrid: open index shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	quadrantIdx, ok := fieldIndex(reader.Fields(), "quadrante")
	if !ok {
		return nil, eris.New("popgrid: index shapefile has no QUADRANTE field")
	}

	var quadrants []Quadrant
	for reader.Next() {
		_, shape := reader.Shape()

		id, err := parseQuadrantID(reader.Attribute(quadrantIdx))
		if err != nil {
			zap.L().Debug("popgrid: skipping index record", zap.Error(err))
			continue
		}

		t := geo.FromShape(shape)
		if t == nil {
			continue
		}
		t, err = reproj.Transform(t, geo.EqualArea, geo.Geographic)
		if err != nil {
			return nil, err
		}
		g, err := geo.GeosFromGeom(t)
		if err != nil {
			return nil, err
		}

		quadrants = append(quadrants, Quadrant{ID: id, Geom: g})
	}

	if len(quadrants) == 0 {
		return nil, eris.New("popgrid: quadrant index is empty")
	}

	zap.L().Info("quadrant index loaded", zap.Int("quadrants", len(quadrants)))
	return &Index{quadrants: quadrants}, nil
}

// NewIndex builds an index directly from quadrants. Used by tests and by any
// caller substituting its own index source.
func NewIndex(quadrants []Quadrant) *Index {
	return &Index{quadrants: quadrants}
}

// FindShards returns the sorted ids of quadrants whose tiles intersect the
// query polygon: bounding-box elimination first, full intersection second.
func (ix *Index) FindShards(poly *geos.Geom) []int {
	minX, minY, maxX, maxY := geo.Bounds(poly)

	seen := make(map[int]bool)
	var ids []int
	for _, q := range ix.quadrants {
		qMinX, qMinY, qMaxX, qMaxY := geo.Bounds(q.Geom)
		if qMinX > maxX || qMaxX < minX || qMinY > maxY || qMaxY < minY {
			continue
		}
		if !q.Geom.Intersects(poly) {
			continue
		}
		if !seen[q.ID] {
			seen[q.ID] = true
			ids = append(ids, q.ID)
		}
	}

	sort.Ints(ids)
	return ids
}

// parseQuadrantID converts a QUADRANTE attribute ("ID_42") to its number.
func parseQuadrantID(attr string) (int, error) {
	s := strings.TrimSpace(strings.TrimRight(attr, "\x00"))
	s = strings.TrimPrefix(s, "ID_")
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Wrapf(err, "popgrid: parse quadrant id %q", attr)
	}
	return id, nil
}

// fieldIndex finds a shapefile field by case-insensitive name.
func fieldIndex(fields []shp.Field, name string) (int, bool) {
	for i, f := range fields {
		fname := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(strings.TrimSpace(fname), name) {
			return i, true
		}
	}
	return 0, false
}
