// Package report formats analysis results for operators: a text summary,
// JSON/YAML documents, an XLSX workbook and HTML density maps.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/margins"
)

// printer formats population counts with Brazilian digit grouping, matching
// the census figures operators compare against.
var printer = message.NewPrinter(language.BrazilianPortuguese)

// WriteText writes a human-readable summary of the analysis.
func WriteText(w io.Writer, res *analysis.Result, genWarnings []margins.Warning) error {
	fmt.Fprintf(w, "Population exposure analysis (run %s)\n", res.RunID)

	for _, warn := range genWarnings {
		fmt.Fprintf(w, "  warning [%s]: %s\n", warn.Param, warn.Message)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  warning [%s]: %s\n", warn.Stage, warn.Message)
	}

	for _, lr := range res.Layers {
		verdict := "ok"
		if lr.Exceeds {
			verdict = "EXCEEDS"
		}
		fmt.Fprintf(w, "\n%s\n", lr.Layer)
		fmt.Fprintf(w, "  total population: %s\n", printer.Sprintf("%d", int64(lr.Stats.TotalPopulation)))
		fmt.Fprintf(w, "  area:             %.2f km2\n", lr.Stats.AreaKm2)
		fmt.Fprintf(w, "  mean density:     %.2f hab/km2\n", lr.Stats.MeanDensity)
		fmt.Fprintf(w, "  max density:      %.2f hab/km2\n", lr.Stats.MaxDensity)
		fmt.Fprintf(w, "  headline:         %.2f hab/km2 (threshold %.0f, %s)\n", lr.Headline, lr.Threshold, verdict)
		fmt.Fprintf(w, "  cells:            %d (shards %d/%d)\n", lr.Stats.CellCount, lr.Stats.ShardsLoaded, lr.Stats.ShardsQueried)
	}

	return nil
}

// WriteJSON writes the result as indented JSON.
func WriteJSON(w io.Writer, res *analysis.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "report: encode JSON")
	}
	return nil
}

// WriteYAML writes the result as YAML.
func WriteYAML(w io.Writer, res *analysis.Result) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close() //nolint:errcheck
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "report: encode YAML")
	}
	return nil
}
