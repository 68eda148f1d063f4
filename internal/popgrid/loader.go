package popgrid

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aldrones/groundrisk/internal/geo"
)

// Cell is one tile of the population grid: 1 km in rural areas, 200 m in
// urban ones. Cells are immutable reference data; area and density are fixed
// at load time in the equal-area projection, never in geographic units.
type Cell struct {
	Population float64
	Geom       *geos.Geom // geographic
	AreaKm2    float64
	DensityKm2 float64
}

// Loader loads shard cell data with a process-lifetime cache keyed by shard
// id. Shard contents never change once fetched, so cached entries are served
// without re-fetch; concurrent requests for the same shard are collapsed to
// a single fetch.
type Loader struct {
	fetcher *Fetcher
	reproj  *geo.Reprojector

	mu    sync.Mutex
	cache map[int][]Cell
	group singleflight.Group
}

// NewLoader creates a Loader around the given fetcher.
func NewLoader(fetcher *Fetcher, reproj *geo.Reprojector) *Loader {
	return &Loader{
		fetcher: fetcher,
		reproj:  reproj,
		cache:   make(map[int][]Cell),
	}
}

// Load returns the cells of one shard, fetching and parsing it on first use.
// Loading is fallible; the caller decides whether a failed shard is fatal.
func (l *Loader) Load(ctx context.Context, id int) ([]Cell, error) {
	l.mu.Lock()
	if cells, ok := l.cache[id]; ok {
		l.mu.Unlock()
		return cells, nil
	}
	l.mu.Unlock()

	v, err, _ := l.group.Do(strconv.Itoa(id), func() (any, error) {
		shpPath, err := l.fetcher.FetchShard(ctx, id)
		if err != nil {
			return nil, err
		}

		cells, err := l.parseCells(shpPath)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.cache[id] = cells
		l.mu.Unlock()

		zap.L().Info("grid shard loaded",
			zap.Int("shard", id),
			zap.Int("cells", len(cells)),
		)
		return cells, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Cell), nil
}

// Cached reports whether a shard is already in the in-process cache.
func (l *Loader) Cached(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.cache[id]
	return ok
}

// parseCells reads a shard shapefile into cells, computing per-cell area and
// density in the equal-area projection.
func (l *Loader) parseCells(shpPath string) ([]Cell, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "popgrid: open shard shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	popIdx, ok := fieldIndex(reader.Fields(), "total")
	if !ok {
		return nil, eris.New("popgrid: shard shapefile has no TOTAL field")
	}

	var cells []Cell
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		t := geo.FromShape(shape)
		if t == nil {
			skipped++
			continue
		}

		pop, err := parsePopulation(reader.Attribute(popIdx))
		if err != nil {
			skipped++
			continue
		}

		g, err := geo.GeosFromGeom(t)
		if err != nil {
			skipped++
			continue
		}

		projected, err := l.reproj.TransformGeos(g, geo.Geographic, geo.EqualArea)
		if err != nil {
			skipped++
			continue
		}
		areaKm2 := projected.Area() / 1e6
		if areaKm2 <= 0 {
			skipped++
			continue
		}

		cells = append(cells, Cell{
			Population: pop,
			Geom:       g,
			AreaKm2:    areaKm2,
			DensityKm2: pop / areaKm2,
		})
	}

	if skipped > 0 {
		zap.L().Debug("popgrid: skipped shard records",
			zap.String("shapefile", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return cells, nil
}

// parsePopulation converts a TOTAL attribute to a non-negative count.
func parsePopulation(attr string) (float64, error) {
	s := strings.TrimSpace(strings.TrimRight(attr, "\x00"))
	if s == "" {
		return 0, nil
	}
	pop, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "popgrid: parse population %q", attr)
	}
	if pop < 0 {
		return 0, eris.Errorf("popgrid: negative population %q", attr)
	}
	return pop, nil
}
