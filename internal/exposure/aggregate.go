// Package exposure quantifies the population inside a safety layer polygon
// by mapping it onto the statistical grid's cells.
package exposure

import (
	"context"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/popgrid"
)

// ErrNoData signals that no grid cell intersects the query polygon, or that
// no quadrant covers it at all. Callers skip the layer and continue; the
// condition is data availability, not failure of the run.
var ErrNoData = eris.New("exposure: no population data for area")

// AreaMode selects how a layer's reference area is measured.
type AreaMode int

const (
	// CellAreaSum uses the summed area of retained cells. Appropriate for
	// layers well approximated by the cell tiling.
	CellAreaSum AreaMode = iota
	// PolygonArea uses the true polygon area in the equal-area projection.
	// Used for ring-shaped layers the tiling over-counts.
	PolygonArea
)

// Stats holds the population exposure figures for one layer.
type Stats struct {
	TotalPopulation float64 `json:"total_population" yaml:"total_population"`
	AreaKm2         float64 `json:"area_km2" yaml:"area_km2"`
	MeanDensity     float64 `json:"mean_density" yaml:"mean_density"`
	MaxDensity      float64 `json:"max_density" yaml:"max_density"`
	P90Density      float64 `json:"p90_density" yaml:"p90_density"`
	CellCount       int     `json:"cell_count" yaml:"cell_count"`
	ShardsQueried   int     `json:"shards_queried" yaml:"shards_queried"`
	ShardsLoaded    int     `json:"shards_loaded" yaml:"shards_loaded"`
}

// Aggregator computes layer statistics against the population grid.
type Aggregator struct {
	index  *popgrid.Index
	loader *popgrid.Loader
	reproj *geo.Reprojector
}

// New creates an Aggregator over the given quadrant index and shard loader.
func New(index *popgrid.Index, loader *popgrid.Loader, reproj *geo.Reprojector) *Aggregator {
	return &Aggregator{index: index, loader: loader, reproj: reproj}
}

// Aggregate computes exposure statistics for a polygon in geographic
// coordinates, returning the retained cells alongside for rendering. A cell
// counts in full when it intersects the polygon at all; there is no
// partial-area apportionment. Individual shard load failures degrade to
// partial coverage; only a total load failure is an error.
func (a *Aggregator) Aggregate(ctx context.Context, poly *geos.Geom, mode AreaMode) (*Stats, []popgrid.Cell, error) {
	log := zap.L().With(zap.String("component", "exposure"))

	shards := a.index.FindShards(poly)
	if len(shards) == 0 {
		log.Warn("no quadrants intersect the polygon")
		return nil, nil, ErrNoData
	}
	log.Debug("relevant quadrants identified", zap.Ints("shards", shards))

	var retained []popgrid.Cell
	loaded := 0
	for _, id := range shards {
		cells, err := a.loader.Load(ctx, id)
		if err != nil {
			log.Warn("shard unavailable, skipping",
				zap.Int("shard", id),
				zap.Error(err),
			)
			continue
		}
		loaded++

		matched := intersectingCells(cells, poly)
		if len(matched) > 0 {
			log.Debug("cells found", zap.Int("shard", id), zap.Int("cells", len(matched)))
			retained = append(retained, matched...)
		}
	}

	if loaded == 0 {
		return nil, nil, eris.Errorf("exposure: all %d shards failed to load", len(shards))
	}
	if len(retained) == 0 {
		return nil, nil, ErrNoData
	}

	stats := &Stats{
		CellCount:     len(retained),
		ShardsQueried: len(shards),
		ShardsLoaded:  loaded,
	}

	densities := make([]float64, 0, len(retained))
	cellAreaKm2 := 0.0
	for _, c := range retained {
		stats.TotalPopulation += c.Population
		cellAreaKm2 += c.AreaKm2
		densities = append(densities, c.DensityKm2)
	}

	switch mode {
	case PolygonArea:
		projected, err := a.reproj.TransformGeos(poly, geo.Geographic, geo.EqualArea)
		if err != nil {
			return nil, nil, err
		}
		stats.AreaKm2 = projected.Area() / 1e6
	default:
		stats.AreaKm2 = cellAreaKm2
	}

	if stats.AreaKm2 > 0 {
		stats.MeanDensity = stats.TotalPopulation / stats.AreaKm2
	}
	stats.MaxDensity = floats.Max(densities)

	sort.Float64s(densities)
	stats.P90Density = stat.Quantile(0.9, stat.Empirical, densities, nil)

	return stats, retained, nil
}

// intersectingCells retains the cells whose geometry truly intersects the
// polygon, using an R-tree over cell bounding boxes for the coarse pass.
func intersectingCells(cells []popgrid.Cell, poly *geos.Geom) []popgrid.Cell {
	if len(cells) == 0 {
		return nil
	}

	tree := rtreego.NewTree(2, 25, 50)
	for i := range cells {
		entry := &cellEntry{cell: &cells[i]}
		if entry.init() {
			tree.Insert(entry)
		}
	}

	minX, minY, maxX, maxY := geo.Bounds(poly)
	queryRect, err := rtreego.NewRectFromPoints(
		rtreego.Point{minX, minY},
		rtreego.Point{maxX, maxY},
	)
	if err != nil {
		return nil
	}

	var matched []popgrid.Cell
	for _, item := range tree.SearchIntersect(queryRect) {
		entry := item.(*cellEntry)
		if entry.cell.Geom.Intersects(poly) {
			matched = append(matched, *entry.cell)
		}
	}
	return matched
}

// cellEntry adapts a grid cell to the R-tree's Spatial interface.
type cellEntry struct {
	cell *popgrid.Cell
	rect rtreego.Rect
}

func (e *cellEntry) init() bool {
	minX, minY, maxX, maxY := geo.Bounds(e.cell.Geom)
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{minX, minY},
		rtreego.Point{maxX, maxY},
	)
	if err != nil {
		return false
	}
	e.rect = rect
	return true
}

func (e *cellEntry) Bounds() rtreego.Rect {
	return e.rect
}
