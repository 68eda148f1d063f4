package margins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/aldrones/groundrisk/internal/geo"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	reproj, err := geo.NewReprojector()
	require.NoError(t, err)
	return NewGenerator(reproj)
}

func testPoint() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{-46.64, -23.55}).SetSRID(4326)
}

func testPolygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		-46.65, -23.56,
		-46.63, -23.56,
		-46.63, -23.54,
		-46.65, -23.54,
		-46.65, -23.56,
	}, []int{10}).SetSRID(4326)
}

func TestGRBForHeight_BelowThreshold(t *testing.T) {
	assert.Equal(t, 0.0, GRBForHeight(0))
	assert.Equal(t, 100.0, GRBForHeight(100))
	assert.Equal(t, 120.0, GRBForHeight(120))
}

func TestGRBForHeight_BallisticEnvelope(t *testing.T) {
	assert.InDelta(t, 161.12, GRBForHeight(200), 0.01)
	assert.InDelta(t, 183.50, GRBForHeight(260), 0.01)
}

func TestGenerate_PointAllLayers(t *testing.T) {
	gen := newTestGenerator(t)

	ls, warnings, err := gen.Generate(testPoint(), Params{
		FGSize: 50,
		Height: 100,
		CVSize: 215,
		Corner: CornerRounded,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	for _, layer := range Layers() {
		g := ls.Get(layer)
		require.NotNil(t, g, "layer %s", layer)
		assert.False(t, g.IsEmpty(), "layer %s", layer)
	}
}

func TestGenerate_LayersNest(t *testing.T) {
	gen := newTestGenerator(t)

	ls, _, err := gen.Generate(testPoint(), Params{
		FGSize: 50,
		Height: 100,
		CVSize: 215,
		Corner: CornerRounded,
	})
	require.NoError(t, err)

	assert.True(t, ls.CV.Contains(ls.FG), "CV should contain FG")
	assert.True(t, ls.GRB.Contains(ls.CV), "GRB should contain CV")
	assert.True(t, ls.AA.Contains(ls.GRB), "AA should contain GRB")
}

func TestGenerate_CumulativeRadii(t *testing.T) {
	gen := newTestGenerator(t)
	reproj, err := geo.NewReprojector()
	require.NoError(t, err)

	ls, _, err := gen.Generate(testPoint(), Params{
		FGSize: 50,
		Height: 100,
		CVSize: 215,
		Corner: CornerRounded,
	})
	require.NoError(t, err)

	center, err := geo.GeosFromGeom(testPoint())
	require.NoError(t, err)
	centerMetric, err := reproj.TransformGeos(center, geo.Geographic, geo.Metric)
	require.NoError(t, err)

	// The boundary distance from the center is the cumulative buffer
	// distance. The Adjacent Area grows from the CV, not the GRB, so its
	// radius is 50+215+5000 rather than 50+215+100+5000.
	for _, tc := range []struct {
		layer Layer
		want  float64
	}{
		{FlightGeography, 50},
		{ContingencyVolume, 265}, // 50 + 215
		{GroundRiskBuffer, 365},  // 50 + 215 + 100
		{AdjacentArea, 5265},     // 50 + 215 + 5000
	} {
		g, err := reproj.TransformGeos(ls.Get(tc.layer), geo.Geographic, geo.Metric)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, centerMetric.Distance(g.Boundary()), 1.0, "layer %s", tc.layer)
	}
}

func TestGenerate_ClampsCVSize(t *testing.T) {
	gen := newTestGenerator(t)

	ls, warnings, err := gen.Generate(testPoint(), Params{
		FGSize: 50,
		Height: 100,
		CVSize: 100,
		Corner: CornerRounded,
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "cv_size", warnings[0].Param)
	assert.Contains(t, warnings[0].Message, "215")

	// The clamped value 215 is what gets buffered.
	reproj, err := geo.NewReprojector()
	require.NoError(t, err)
	center, err := geo.GeosFromGeom(testPoint())
	require.NoError(t, err)
	centerMetric, err := reproj.TransformGeos(center, geo.Geographic, geo.Metric)
	require.NoError(t, err)
	cv, err := reproj.TransformGeos(ls.CV, geo.Geographic, geo.Metric)
	require.NoError(t, err)
	assert.InDelta(t, 265, centerMetric.Distance(cv.Boundary()), 1.0)
}

func TestGenerate_ClampsGRBOverride(t *testing.T) {
	gen := newTestGenerator(t)

	low := 50.0
	_, warnings, err := gen.Generate(testPoint(), Params{
		FGSize:  50,
		Height:  100,
		CVSize:  215,
		GRBSize: &low,
		Corner:  CornerRounded,
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "grb_size", warnings[0].Param)
}

func TestGenerate_GRBOverrideAboveMinimum(t *testing.T) {
	gen := newTestGenerator(t)

	high := 500.0
	_, warnings, err := gen.Generate(testPoint(), Params{
		FGSize:  50,
		Height:  100,
		CVSize:  215,
		GRBSize: &high,
		Corner:  CornerRounded,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestGenerate_PolygonIgnoresFGSize(t *testing.T) {
	gen := newTestGenerator(t)
	reproj, err := geo.NewReprojector()
	require.NoError(t, err)

	withFG, _, err := gen.Generate(testPolygon(), Params{
		FGSize: 500,
		Height: 100,
		CVSize: 215,
	})
	require.NoError(t, err)

	withoutFG, _, err := gen.Generate(testPolygon(), Params{
		Height: 100,
		CVSize: 215,
	})
	require.NoError(t, err)

	a, err := reproj.TransformGeos(withFG.FG, geo.Geographic, geo.EqualArea)
	require.NoError(t, err)
	b, err := reproj.TransformGeos(withoutFG.FG, geo.Geographic, geo.EqualArea)
	require.NoError(t, err)
	assert.InDelta(t, b.Area(), a.Area(), b.Area()*1e-6)
}

func TestGenerate_Idempotent(t *testing.T) {
	gen := newTestGenerator(t)
	p := Params{FGSize: 50, Height: 100, CVSize: 215, Corner: CornerSquare}

	first, _, err := gen.Generate(testPoint(), p)
	require.NoError(t, err)
	second, _, err := gen.Generate(testPoint(), p)
	require.NoError(t, err)

	for _, layer := range Layers() {
		assert.True(t, first.Get(layer).Equals(second.Get(layer)), "layer %s", layer)
	}
}

func TestGenerate_NegativeParameter(t *testing.T) {
	gen := newTestGenerator(t)

	_, _, err := gen.Generate(testPoint(), Params{FGSize: -1, Height: 100, CVSize: 215})
	assert.Error(t, err)
}

func TestGenerate_UnknownCornerStyle(t *testing.T) {
	gen := newTestGenerator(t)

	_, _, err := gen.Generate(testPoint(), Params{Height: 100, CVSize: 215, Corner: "beveled"})
	assert.Error(t, err)
}

func TestGenerate_NilInput(t *testing.T) {
	gen := newTestGenerator(t)

	_, _, err := gen.Generate(nil, Params{Height: 100, CVSize: 215})
	assert.Error(t, err)
}
