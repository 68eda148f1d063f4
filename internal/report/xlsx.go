package report

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/aldrones/groundrisk/internal/analysis"
)

// WriteXLSX saves the analysis as a one-sheet workbook with a row per layer.
func WriteXLSX(path string, res *analysis.Result) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Population Exposure")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Layer", "Total Population", "Area (km2)", "Mean Density (hab/km2)",
		"Max Density (hab/km2)", "P90 Density (hab/km2)", "Headline Density",
		"Threshold", "Exceeds", "Cells", "Shards Loaded",
	} {
		header.AddCell().SetString(h)
	}

	for _, lr := range res.Layers {
		row := sheet.AddRow()
		row.AddCell().SetString(string(lr.Layer))
		row.AddCell().SetInt64(int64(lr.Stats.TotalPopulation))
		row.AddCell().SetFloat(lr.Stats.AreaKm2)
		row.AddCell().SetFloat(lr.Stats.MeanDensity)
		row.AddCell().SetFloat(lr.Stats.MaxDensity)
		row.AddCell().SetFloat(lr.Stats.P90Density)
		row.AddCell().SetFloat(lr.Headline)
		row.AddCell().SetFloat(lr.Threshold)
		row.AddCell().SetString(fmt.Sprintf("%t", lr.Exceeds))
		row.AddCell().SetInt(lr.Stats.CellCount)
		row.AddCell().SetInt(lr.Stats.ShardsLoaded)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}
