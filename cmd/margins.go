package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
)

var (
	marginsInput   string
	marginsOut     string
	marginsGeoJSON string
	marginsFGSize  float64
	marginsHeight  float64
	marginsCVSize  float64
	marginsGRBSize float64
	marginsAdjSize float64
	marginsCorner  string
)

var marginsCmd = &cobra.Command{
	Use:   "margins",
	Short: "Generate safety margin layers for a flight geometry",
	Long:  "Reads a flight geometry from GeoJSON, derives the Flight Geography, Contingency Volume, Ground Risk Buffer and Adjacent Area, and writes them as KML (and optionally GeoJSON).",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := geo.ReadGeoJSON(marginsInput)
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

		if err := writeLayerFile(marginsOut, ls, margins.WriteKML); err != nil {
			return err
		}
		if marginsGeoJSON != "" {
			if err := writeLayerFile(marginsGeoJSON, ls, margins.WriteGeoJSON); err != nil {
				return err
			}
		}

		zap.L().Info("margins written", zap.String("kml", marginsOut))
		return nil
	},
}

func paramsFromFlags(cmd *cobra.Command) margins.Params {
	p := defaultParams()
	p.FGSize = marginsFGSize
	if cmd.Flags().Changed("height") {
		p.Height = marginsHeight
	}
	if cmd.Flags().Changed("cv-size") {
		p.CVSize = marginsCVSize
	}
	if cmd.Flags().Changed("grb-size") {
		p.GRBSize = &marginsGRBSize
	}
	if cmd.Flags().Changed("adj-size") {
		p.AdjSize = marginsAdjSize
	}
	if cmd.Flags().Changed("corner-style") {
		p.Corner = margins.CornerStyle(marginsCorner)
	}
	return p
}

func writeLayerFile(path string, ls *margins.LayerSet, write func(w io.Writer, ls *margins.LayerSet) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return write(f, ls)
}

func init() {
	marginsCmd.Flags().StringVar(&marginsInput, "input", "", "flight geometry GeoJSON file (required)")
	marginsCmd.Flags().StringVar(&marginsOut, "out", "margins.kml", "output KML file")
	marginsCmd.Flags().StringVar(&marginsGeoJSON, "geojson", "", "also write layers as GeoJSON to this file")
	marginsCmd.Flags().Float64Var(&marginsFGSize, "fg-size", 0, "flight geography buffer in meters (point/line input)")
	marginsCmd.Flags().Float64Var(&marginsHeight, "height", 0, "flight height in meters")
	marginsCmd.Flags().Float64Var(&marginsCVSize, "cv-size", 0, "contingency volume size in meters (min 215)")
	marginsCmd.Flags().Float64Var(&marginsGRBSize, "grb-size", 0, "ground risk buffer override in meters")
	marginsCmd.Flags().Float64Var(&marginsAdjSize, "adj-size", 0, "adjacent area size in meters")
	marginsCmd.Flags().StringVar(&marginsCorner, "corner-style", "", "buffer corner style: square or rounded")
	_ = marginsCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(marginsCmd)
}
