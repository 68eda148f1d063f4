package popgrid

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"

	"github.com/aldrones/groundrisk/internal/geo"
)

func newTestReprojector(t *testing.T) *geo.Reprojector {
	t.Helper()
	reproj, err := geo.NewReprojector()
	require.NoError(t, err)
	return reproj
}

func geosSquare(t *testing.T, x0, y0, x1, y1 float64) *geos.Geom {
	t.Helper()
	wkt := fmt.Sprintf("POLYGON ((%g %g, %g %g, %g %g, %g %g, %g %g))",
		x0, y0, x1, y0, x1, y1, x0, y1, x0, y0)
	g, err := geos.NewGeomFromWKT(wkt)
	require.NoError(t, err)
	return g
}

// newLShape covers the left column and bottom row of a 1x1 degree box, so
// its bounding box is much larger than the geometry itself.
func newLShape() (*geos.Geom, error) {
	return geos.NewGeomFromWKT("POLYGON ((-46 -24, -45 -24, -45 -23.8, -45.8 -23.8, -45.8 -23, -46 -23, -46 -24))")
}

func squareShape(x0, y0, x1, y1 float64) *shp.Polygon {
	return &shp.Polygon{
		Box:       shp.Box{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1},
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: x0, Y: y0},
			{X: x0, Y: y1},
			{X: x1, Y: y1},
			{X: x1, Y: y0},
			{X: x0, Y: y0},
		},
	}
}

type gridRecord struct {
	shape *shp.Polygon
	attr  string
}

// writeShardArchive builds a zipped one-attribute polygon shapefile the way
// the grid server publishes them.
func writeShardArchive(t *testing.T, field shp.Field, records []gridRecord) []byte {
	t.Helper()

	dir := t.TempDir()
	shpPath := filepath.Join(dir, "grade.shp")

	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)
	w.SetFields([]shp.Field{field})
	for n, rec := range records {
		w.Write(rec.shape)
		w.WriteAttribute(n, 0, rec.attr)
	}
	w.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		path := strings.TrimSuffix(shpPath, ".shp") + ext
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		entry, err := zw.Create("grade" + ext)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// gridServer serves archives by URL path and counts requests.
func gridServer(t *testing.T, archives map[string][]byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		data, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func newTestFetcher(t *testing.T, srv *httptest.Server) *Fetcher {
	t.Helper()
	return NewFetcher(FetchOptions{
		IndexURL:   srv.URL + "/BR500KM.zip",
		BaseURL:    srv.URL,
		CacheDir:   t.TempDir(),
		RatePerSec: 1000,
	})
}
