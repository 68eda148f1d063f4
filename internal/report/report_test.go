package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geos"
	"gopkg.in/yaml.v3"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/exposure"
	"github.com/aldrones/groundrisk/internal/margins"
	"github.com/aldrones/groundrisk/internal/popgrid"
)

func testResult(t *testing.T) *analysis.Result {
	t.Helper()

	cellGeom, err := geos.NewGeomFromWKT("POLYGON ((-46.650 -23.560, -46.648 -23.560, -46.648 -23.558, -46.650 -23.558, -46.650 -23.560))")
	require.NoError(t, err)
	cells := []popgrid.Cell{
		{Population: 120, Geom: cellGeom, AreaKm2: 0.045, DensityKm2: 2666.7},
	}

	return &analysis.Result{
		RunID: "run-123",
		Layers: []*analysis.LayerResult{
			{
				Layer: margins.FlightGeography,
				Stats: &exposure.Stats{
					TotalPopulation: 120,
					AreaKm2:         0.045,
					MeanDensity:     2666.7,
					MaxDensity:      2666.7,
					P90Density:      2666.7,
					CellCount:       1,
					ShardsQueried:   1,
					ShardsLoaded:    1,
				},
				Headline:  2666.7,
				Threshold: 5,
				Exceeds:   true,
				Cells:     cells,
			},
			{
				Layer: margins.AdjacentArea,
				Stats: &exposure.Stats{
					TotalPopulation: 4031,
					AreaKm2:         95.2,
					MeanDensity:     42.3,
					MaxDensity:      900,
					P90Density:      310,
					CellCount:       212,
					ShardsQueried:   2,
					ShardsLoaded:    2,
				},
				Headline:  42.3,
				Threshold: 50,
				Exceeds:   false,
				Cells:     cells,
			},
		},
		Warnings: []analysis.Warning{
			{Stage: string(margins.GroundRiskBuffer), Message: "no statistics: no population data for area"},
		},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, testResult(t), []margins.Warning{
		{Param: "cv_size", Message: "CV size (100m) is less than minimum (215m); using 215m"},
	}))

	out := buf.String()
	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "Flight Geography")
	assert.Contains(t, out, "Adjacent Area")
	assert.Contains(t, out, "EXCEEDS")
	assert.Contains(t, out, "warning [cv_size]")
	assert.Contains(t, out, "warning [Ground Risk Buffer]")
	// Brazilian digit grouping on population counts.
	assert.Contains(t, out, "4.031")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, testResult(t)))

	var decoded analysis.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-123", decoded.RunID)
	require.Len(t, decoded.Layers, 2)
	assert.Equal(t, 120.0, decoded.Layers[0].Stats.TotalPopulation)
	// Cells are rendering data, not part of the document.
	assert.Empty(t, decoded.Layers[0].Cells)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, testResult(t)))

	var decoded analysis.Result
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-123", decoded.RunID)
	require.Len(t, decoded.Layers, 2)
	assert.True(t, decoded.Layers[0].Exceeds)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exposure.xlsx")
	require.NoError(t, WriteXLSX(path, testResult(t)))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Population Exposure", sheet.Name)
	require.Len(t, sheet.Rows, 3, "header plus one row per layer")
	assert.Equal(t, "Layer", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Flight Geography", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Adjacent Area", sheet.Rows[2].Cells[0].String())
}

func TestWriteCharts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	paths, err := WriteCharts(dir, testResult(t))
	require.NoError(t, err)
	require.Len(t, paths, 3, "two density maps plus the summary bar")

	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Contains(t, string(data), "echarts")
	}

	_, err = os.Stat(filepath.Join(dir, "map_flight_geography.html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "exposure_summary.html"))
	assert.NoError(t, err)
}

func TestWriteCharts_SkipsLayersWithoutCells(t *testing.T) {
	res := testResult(t)
	res.Layers[1].Cells = nil

	dir := filepath.Join(t.TempDir(), "charts")
	paths, err := WriteCharts(dir, res)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	_, err = os.Stat(filepath.Join(dir, "map_adjacent_area.html"))
	assert.True(t, os.IsNotExist(err))
}
