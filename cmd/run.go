package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
)

var (
	runInput  string
	runOutDir string
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate margins and analyze exposure in one pass",
	Long:  "Reads a flight geometry from GeoJSON, generates the safety margin layers, analyzes population exposure and writes KML, GeoJSON, report, workbook and charts into the output directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		input, err := geo.ReadGeoJSON(runInput)
		if err != nil {
			return err
		}

		reproj, err := geo.NewReprojector()
		if err != nil {
			return err
		}

		p := paramsFromFlags(cmd)
		ls, warnings, err := margins.NewGenerator(reproj).Generate(input, p)
		if err != nil {
			return err
		}
		for _, w := range warnings {
			zap.L().Warn(w.Message, zap.String("param", w.Param))
		}

		if err := os.MkdirAll(runOutDir, 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}
		if err := writeLayerFile(filepath.Join(runOutDir, "margins.kml"), ls, margins.WriteKML); err != nil {
			return err
		}
		if err := writeLayerFile(filepath.Join(runOutDir, "margins.geojson"), ls, margins.WriteGeoJSON); err != nil {
			return err
		}

		analyzer, err := initAnalyzer(ctx, reproj)
		if err != nil {
			return err
		}
		res, err := analyzer.Run(ctx, ls)
		if err != nil {
			return err
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", res.RunID),
			zap.Int("layers", len(res.Layers)),
			zap.Int("warnings", len(res.Warnings)),
		)

		return writeReports(res, warnings, runFormat,
			filepath.Join(runOutDir, "exposure.xlsx"),
			filepath.Join(runOutDir, "charts"))
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "flight geometry GeoJSON file (required)")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", "out", "output directory")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "report format: text, json or yaml")
	runCmd.Flags().Float64Var(&marginsFGSize, "fg-size", 0, "flight geography buffer in meters (point/line input)")
	runCmd.Flags().Float64Var(&marginsHeight, "height", 0, "flight height in meters")
	runCmd.Flags().Float64Var(&marginsCVSize, "cv-size", 0, "contingency volume size in meters (min 215)")
	runCmd.Flags().Float64Var(&marginsGRBSize, "grb-size", 0, "ground risk buffer override in meters")
	runCmd.Flags().Float64Var(&marginsAdjSize, "adj-size", 0, "adjacent area size in meters")
	runCmd.Flags().StringVar(&marginsCorner, "corner-style", "", "buffer corner style: square or rounded")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
