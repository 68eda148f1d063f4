package popgrid

import (
	"context"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuadrantID(t *testing.T) {
	tests := []struct {
		attr    string
		want    int
		wantErr bool
	}{
		{"ID_42", 42, false},
		{"ID_4", 4, false},
		{"  ID_17  ", 17, false},
		{"ID_17\x00\x00", 17, false},
		{"7", 7, false},
		{"ID_", 0, true},
		{"quadrant", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		id, err := parseQuadrantID(tc.attr)
		if tc.wantErr {
			assert.Error(t, err, "attr %q", tc.attr)
			continue
		}
		require.NoError(t, err, "attr %q", tc.attr)
		assert.Equal(t, tc.want, id, "attr %q", tc.attr)
	}
}

func TestFindShards(t *testing.T) {
	ix := NewIndex([]Quadrant{
		{ID: 2, Geom: geosSquare(t, -47, -24, -46, -23)},
		{ID: 1, Geom: geosSquare(t, -48, -24, -47, -23)},
		{ID: 3, Geom: geosSquare(t, -40, -10, -39, -9)},
	})

	// Straddles the boundary between quadrants 1 and 2.
	ids := ix.FindShards(geosSquare(t, -47.1, -23.6, -46.9, -23.4))
	assert.Equal(t, []int{1, 2}, ids)

	ids = ix.FindShards(geosSquare(t, -46.5, -23.5, -46.4, -23.4))
	assert.Equal(t, []int{2}, ids)

	ids = ix.FindShards(geosSquare(t, 10, 10, 11, 11))
	assert.Empty(t, ids)
}

func TestFindShards_BBoxOverlapButDisjoint(t *testing.T) {
	// An L-shaped quadrant whose bounding box overlaps the query while the
	// geometry itself does not.
	l, err := newLShape()
	require.NoError(t, err)
	ix := NewIndex([]Quadrant{{ID: 5, Geom: l}})

	ids := ix.FindShards(geosSquare(t, -45.4, -23.4, -45.1, -23.1))
	assert.Empty(t, ids)
}

func TestLoadIndex(t *testing.T) {
	// Index geometry ships in the grid's equal-area CRS.
	archive := writeShardArchive(t, shp.StringField("QUADRANTE", 20), []gridRecord{
		{shape: squareShape(0, 0, 500000, 500000), attr: "ID_4"},
		{shape: squareShape(500000, 0, 1000000, 500000), attr: "ID_17"},
		{shape: squareShape(1000000, 0, 1500000, 500000), attr: "garbage"},
	})
	srv, _ := gridServer(t, map[string][]byte{"/BR500KM.zip": archive})

	ix, err := LoadIndex(context.Background(), newTestFetcher(t, srv), newTestReprojector(t))
	require.NoError(t, err)
	require.Len(t, ix.quadrants, 2, "unparseable quadrant ids are skipped")

	// The equal-area origin sits at (-54, -12), so the first quadrant covers
	// the area just north-east of it.
	ids := ix.FindShards(geosSquare(t, -53.9, -11.9, -53.8, -11.8))
	assert.Equal(t, []int{4}, ids)
}

func TestLoadIndex_MissingField(t *testing.T) {
	archive := writeShardArchive(t, shp.StringField("WRONG", 20), []gridRecord{
		{shape: squareShape(0, 0, 500000, 500000), attr: "ID_4"},
	})
	srv, _ := gridServer(t, map[string][]byte{"/BR500KM.zip": archive})

	_, err := LoadIndex(context.Background(), newTestFetcher(t, srv), newTestReprojector(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUADRANTE")
}
