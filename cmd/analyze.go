package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
	"github.com/aldrones/groundrisk/internal/report"
)

var (
	analyzeLayers string
	analyzeFormat string
	analyzeXLSX   string
	analyzeCharts string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate population exposure for generated safety layers",
	Long:  "Reads a layer GeoJSON produced by the margins command, queries the statistical population grid and reports exposure per layer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ls, err := margins.ReadLayers(analyzeLayers)
		if err != nil {
			return err
		}

		reproj, err := geo.NewReprojector()
		if err != nil {
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

		return writeReports(res, nil, analyzeFormat, analyzeXLSX, analyzeCharts)
	},
}

func writeReports(res *analysis.Result, genWarnings []margins.Warning, format, xlsxPath, chartsDir string) error {
	switch format {
	case "text":
		if err := report.WriteText(os.Stdout, res, genWarnings); err != nil {
			return err
		}
	case "json":
		if err := report.WriteJSON(os.Stdout, res); err != nil {
			return err
		}
	case "yaml":
		if err := report.WriteYAML(os.Stdout, res); err != nil {
			return err
		}
	default:
		return eris.Errorf("unknown format %q", format)
	}

	if xlsxPath != "" {
		if err := report.WriteXLSX(xlsxPath, res); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("path", xlsxPath))
	}
	if chartsDir != "" {
		paths, err := report.WriteCharts(chartsDir, res)
		if err != nil {
			return err
		}
		zap.L().Info("charts written", zap.Int("count", len(paths)), zap.String("dir", chartsDir))
	}

	return nil
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeLayers, "layers", "", "layer GeoJSON file from the margins command (required)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "text", "report format: text, json or yaml")
	analyzeCmd.Flags().StringVar(&analyzeXLSX, "xlsx", "", "also write an XLSX workbook to this path")
	analyzeCmd.Flags().StringVar(&analyzeCharts, "charts", "", "also write HTML density charts to this directory")
	_ = analyzeCmd.MarkFlagRequired("layers")
	rootCmd.AddCommand(analyzeCmd)
}
