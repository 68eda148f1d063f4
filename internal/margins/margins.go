// Package margins derives the four nested safety layers around a drone
// flight geometry: Flight Geography, Contingency Volume, Ground Risk Buffer
// and Adjacent Area. All buffer arithmetic happens in the metric CRS; all
// returned geometry is geographic.
package margins

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/geo"
)

// Layer names one of the four safety margin layers.
type Layer string

const (
	FlightGeography   Layer = "Flight Geography"
	ContingencyVolume Layer = "Contingency Volume"
	GroundRiskBuffer  Layer = "Ground Risk Buffer"
	AdjacentArea      Layer = "Adjacent Area"
)

// Layers returns all layer names in generation order.
func Layers() []Layer {
	return []Layer{FlightGeography, ContingencyVolume, GroundRiskBuffer, AdjacentArea}
}

// CornerStyle selects the buffer join style.
type CornerStyle string

const (
	CornerSquare  CornerStyle = "square"
	CornerRounded CornerStyle = "rounded"
)

// MinCVSize is the regulatory floor for the Contingency Volume, in meters.
const MinCVSize = 215

// bufferQuadSegs is the number of segments per quarter circle.
const bufferQuadSegs = 16

const mitreLimit = 5.0

// Params holds the flight parameters driving layer generation.
type Params struct {
	// FGSize is the Flight Geography buffer in meters. Only meaningful for
	// point or line input; forced to 0 when the input is already a polygon.
	FGSize float64
	// Height is the flight height in meters.
	Height float64
	// CVSize is the Contingency Volume buffer in meters (min 215).
	CVSize float64
	// GRBSize overrides the Ground Risk Buffer size. When nil it is derived
	// from Height.
	GRBSize *float64
	// AdjSize is the Adjacent Area buffer in meters, measured from the
	// Contingency Volume.
	AdjSize float64
	// Corner selects square or rounded buffer corners.
	Corner CornerStyle
}

// Warning records a parameter adjustment that was recovered locally. Warnings
// are reported to the operator but never halt generation.
type Warning struct {
	Param   string `json:"param" yaml:"param"`
	Message string `json:"message" yaml:"message"`
}

// LayerSet holds the generated layers in geographic coordinates. A nil layer
// is absent.
type LayerSet struct {
	FG  *geos.Geom
	CV  *geos.Geom
	GRB *geos.Geom
	AA  *geos.Geom
}

// Get returns the geometry for a layer name, or nil.
func (ls *LayerSet) Get(l Layer) *geos.Geom {
	switch l {
	case FlightGeography:
		return ls.FG
	case ContingencyVolume:
		return ls.CV
	case GroundRiskBuffer:
		return ls.GRB
	case AdjacentArea:
		return ls.AA
	}
	return nil
}

func (ls *LayerSet) set(l Layer, g *geos.Geom) {
	switch l {
	case FlightGeography:
		ls.FG = g
	case ContingencyVolume:
		ls.CV = g
	case GroundRiskBuffer:
		ls.GRB = g
	case AdjacentArea:
		ls.AA = g
	}
}

// GRBForHeight computes the minimum Ground Risk Buffer size for a flight
// height. Up to 120 m the buffer equals the height; above that it follows the
// ballistic descent envelope. The threshold and constants are a fixed
// physical contract.
func GRBForHeight(height float64) float64 {
	if height <= 120 {
		return height
	}
	return 25*math.Sqrt(2*height/9.81) + 1.485
}

// Generator produces safety margin layer sets.
type Generator struct {
	reproj *geo.Reprojector
}

// NewGenerator returns a Generator using the given reprojector.
func NewGenerator(r *geo.Reprojector) *Generator {
	return &Generator{reproj: r}
}

// Generate derives the four safety layers from an input geometry in
// geographic coordinates. Sub-minimum cv/grb parameters are clamped up and
// reported as warnings, not errors; only invalid input geometry fails.
func (gen *Generator) Generate(input geom.T, p Params) (*LayerSet, []Warning, error) {
	if input == nil {
		return nil, nil, eris.New("margins: nil input geometry")
	}
	if p.FGSize < 0 || p.Height < 0 || p.CVSize < 0 || p.AdjSize < 0 {
		return nil, nil, eris.New("margins: negative flight parameter")
	}
	if p.Corner == "" {
		p.Corner = CornerSquare
	}
	if p.AdjSize == 0 {
		p.AdjSize = 5000
	}
	if p.Corner != CornerSquare && p.Corner != CornerRounded {
		return nil, nil, eris.Errorf("margins: unknown corner style %q", p.Corner)
	}

	base, err := geo.GeosFromGeom(input)
	if err != nil {
		return nil, nil, err
	}
	if base.IsEmpty() {
		return nil, nil, eris.New("margins: empty input geometry")
	}

	log := zap.L().With(zap.String("component", "margins"))

	// A polygon input already is the Flight Geography.
	isPolygon := geo.IsPolygonal(base)
	fgSize := p.FGSize
	if isPolygon && fgSize != 0 {
		log.Debug("polygon input, ignoring fg_size", zap.Float64("fg_size", fgSize))
		fgSize = 0
	}

	var warnings []Warning

	grbSize := GRBForHeight(p.Height)
	if p.GRBSize != nil {
		if *p.GRBSize < grbSize {
			warnings = append(warnings, Warning{
				Param: "grb_size",
				Message: fmt.Sprintf("GRB size (%gm) is less than calculated minimum (%.2fm); using %.2fm",
					*p.GRBSize, grbSize, grbSize),
			})
		} else {
			grbSize = *p.GRBSize
		}
	}

	cvSize := p.CVSize
	if cvSize < MinCVSize {
		warnings = append(warnings, Warning{
			Param:   "cv_size",
			Message: fmt.Sprintf("CV size (%gm) is less than minimum (%dm); using %dm", cvSize, MinCVSize, MinCVSize),
		})
		cvSize = MinCVSize
	}

	metric, err := gen.reproj.TransformGeos(base, geo.Geographic, geo.Metric)
	if err != nil {
		return nil, nil, err
	}

	joinStyle := geos.BufJoinStyleMitre
	if p.Corner == CornerRounded {
		joinStyle = geos.BufJoinStyleRound
	}

	// Cumulative outward distances from the input geometry; each layer
	// geometrically contains the previous ones.
	distances := []struct {
		layer Layer
		d     float64
	}{
		{FlightGeography, fgSize},
		{ContingencyVolume, cvSize + fgSize},
		{GroundRiskBuffer, grbSize + cvSize + fgSize},
	}

	ls := &LayerSet{}
	var cvMetric *geos.Geom

	for _, ld := range distances {
		buffered := metric
		if ld.d > 0 {
			// Point and line sources get a squared-off cap on the
			// Flight Geography; everything else keeps round caps.
			capStyle := geos.BufCapStyleRound
			if ld.layer == FlightGeography && !isPolygon {
				capStyle = geos.BufCapStyleSquare
			}
			buffered = metric.BufferWithStyle(ld.d, bufferQuadSegs, capStyle, joinStyle, mitreLimit)
		}

		if ld.layer == ContingencyVolume {
			cvMetric = buffered
		}

		geographic, err := gen.reproj.TransformGeos(buffered, geo.Metric, geo.Geographic)
		if err != nil {
			return nil, nil, err
		}
		ls.set(ld.layer, geographic)
	}

	// The Adjacent Area expands the Contingency Volume, not the GRB; the
	// aggregation step later subtracts the GRB to obtain the reported ring.
	aaMetric := cvMetric.Buffer(p.AdjSize, bufferQuadSegs)
	aa, err := gen.reproj.TransformGeos(aaMetric, geo.Metric, geo.Geographic)
	if err != nil {
		return nil, nil, err
	}
	ls.AA = aa

	log.Info("safety margins generated",
		zap.Float64("fg_size", fgSize),
		zap.Float64("cv_size", cvSize),
		zap.Float64("grb_size", grbSize),
		zap.Float64("adj_size", p.AdjSize),
		zap.Bool("polygon_input", isPolygon),
		zap.Int("warnings", len(warnings)),
	)

	return ls, warnings, nil
}
