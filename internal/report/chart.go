package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
)

// viridis-like ramp for the density visual map.
var densityRamp = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// WriteCharts renders one density scatter map per layer plus a bar chart of
// layer totals into dir, returning the paths written.
func WriteCharts(dir string, res *analysis.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "report: create chart dir")
	}

	var paths []string
	for _, lr := range res.Layers {
		if len(lr.Cells) == 0 {
			zap.L().Debug("no cells for layer, skipping density map", zap.String("layer", string(lr.Layer)))
			continue
		}
		path := filepath.Join(dir, "map_"+layerSlug(lr.Layer)+".html")
		if err := renderDensityMap(path, lr); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	path := filepath.Join(dir, "exposure_summary.html")
	if err := renderSummaryBar(path, res); err != nil {
		return nil, err
	}
	paths = append(paths, path)

	return paths, nil
}

func renderDensityMap(path string, lr *analysis.LayerResult) error {
	data := make([]opts.ScatterData, 0, len(lr.Cells))
	minX, minY := 180.0, 90.0
	maxX, maxY := -180.0, -90.0
	maxDensity := 0.0
	for _, cell := range lr.Cells {
		x0, y0, x1, y1 := geo.Bounds(cell.Geom)
		x, y := (x0+x1)/2, (y0+y1)/2
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
		if cell.DensityKm2 > maxDensity {
			maxDensity = cell.DensityKm2
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, cell.DensityKm2}})
	}
	if maxDensity == 0 {
		maxDensity = 1
	}
	padX := (maxX - minX) * 0.05
	padY := (maxY - minY) * 0.05
	if padX == 0 {
		padX = 0.005
	}
	if padY == 0 {
		padY = 0.005
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: string(lr.Layer), Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    string(lr.Layer),
			Subtitle: fmt.Sprintf("cells=%d headline=%.2f hab/km2 threshold=%.0f", len(data), lr.Headline, lr.Threshold),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - padX, Max: maxX + padX, Name: "Lon", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - padY, Max: maxY + padY, Name: "Lat", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDensity),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: densityRamp},
		}),
	)
	scatter.AddSeries("cells", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	return renderToFile(path, scatter.Render)
}

func renderSummaryBar(path string, res *analysis.Result) error {
	x := make([]string, 0, len(res.Layers))
	pop := make([]opts.BarData, 0, len(res.Layers))
	for _, lr := range res.Layers {
		x = append(x, string(lr.Layer))
		pop = append(pop, opts.BarData{Value: lr.Stats.TotalPopulation})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Population Exposure", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Population Exposure", Subtitle: "run " + res.RunID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("population", pop,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	return renderToFile(path, bar.Render)
}

func renderToFile(path string, render func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create chart file")
	}
	defer f.Close() //nolint:errcheck
	if err := render(f); err != nil {
		return eris.Wrapf(err, "report: render %s", filepath.Base(path))
	}
	return nil
}

func layerSlug(layer margins.Layer) string {
	return strings.ReplaceAll(strings.ToLower(string(layer)), " ", "_")
}
