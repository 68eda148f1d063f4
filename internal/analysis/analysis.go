// Package analysis sequences the population exposure pipeline over a safety
// margin layer set: Flight Geography, Ground Risk Buffer, then the Adjacent
// Area ring derived by subtracting the GRB from the AA buffer.
package analysis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/aldrones/groundrisk/internal/exposure"
	"github.com/aldrones/groundrisk/internal/margins"
	"github.com/aldrones/groundrisk/internal/popgrid"
)

// ErrNoResult signals that every layer's aggregation failed or was skipped;
// the run produced nothing.
var ErrNoResult = eris.New("analysis: no layer produced statistics")

// Options holds the density thresholds, in hab/km².
type Options struct {
	// OperationalThreshold flags FG and GRB cells/layers (headline figure is
	// the maximum cell density, which catches localized spikes an average
	// masks).
	OperationalThreshold float64
	// AdjacentThreshold flags the Adjacent Area ring (headline figure is the
	// mean density over the true ring area).
	AdjacentThreshold float64
}

// LayerResult is the outcome for one analyzed layer.
type LayerResult struct {
	Layer margins.Layer   `json:"layer" yaml:"layer"`
	Stats *exposure.Stats `json:"stats" yaml:"stats"`
	// Headline is the density figure the threshold applies to: max density
	// for FG and GRB, mean density for the Adjacent Area ring.
	Headline  float64 `json:"headline_density" yaml:"headline_density"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Exceeds   bool    `json:"exceeds_threshold" yaml:"exceeds_threshold"`

	// Cells are the retained grid cells, kept for rendering only.
	Cells []popgrid.Cell `json:"-" yaml:"-"`
}

// Warning records a skipped stage or degraded coverage.
type Warning struct {
	Stage   string `json:"stage" yaml:"stage"`
	Message string `json:"message" yaml:"message"`
}

// Result is the full analysis outcome.
type Result struct {
	RunID    string         `json:"run_id" yaml:"run_id"`
	Layers   []*LayerResult `json:"layers" yaml:"layers"`
	Warnings []Warning      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Get returns the result for a layer name, or nil.
func (r *Result) Get(l margins.Layer) *LayerResult {
	for _, lr := range r.Layers {
		if lr.Layer == l {
			return lr
		}
	}
	return nil
}

// Analyzer runs the per-layer exposure aggregation in a fixed sequence.
type Analyzer struct {
	agg  *exposure.Aggregator
	opts Options
}

// New creates an Analyzer.
func New(agg *exposure.Aggregator, opts Options) *Analyzer {
	if opts.OperationalThreshold == 0 {
		opts.OperationalThreshold = 5
	}
	if opts.AdjacentThreshold == 0 {
		opts.AdjacentThreshold = 50
	}
	return &Analyzer{agg: agg, opts: opts}
}

// Run analyzes a layer set. Layers are processed in the fixed order FG, GRB,
// Adjacent-Area ring; a layer whose data is missing or unavailable is skipped
// with a warning and the run continues. Only a run where every stage fails
// returns ErrNoResult.
func (a *Analyzer) Run(ctx context.Context, ls *margins.LayerSet) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	log := zap.L().With(
		zap.String("component", "analysis"),
		zap.String("run_id", result.RunID),
	)

	a.stage(ctx, result, log, margins.FlightGeography, ls.FG,
		exposure.CellAreaSum, a.opts.OperationalThreshold, maxHeadline)

	a.stage(ctx, result, log, margins.GroundRiskBuffer, ls.GRB,
		exposure.CellAreaSum, a.opts.OperationalThreshold, maxHeadline)

	// The reported Adjacent Area is the ring between the AA buffer and the
	// GRB, never the raw AA polygon. The ring is irregular, so its density
	// uses the true polygon area rather than the cell-area sum.
	if ls.AA != nil && ls.GRB != nil {
		ring := ls.AA.Difference(ls.GRB)
		a.stage(ctx, result, log, margins.AdjacentArea, ring,
			exposure.PolygonArea, a.opts.AdjacentThreshold, meanHeadline)
	} else {
		a.warn(result, log, margins.AdjacentArea, "missing AA or GRB layer, skipping ring analysis")
	}

	if len(result.Layers) == 0 {
		return nil, ErrNoResult
	}
	return result, nil
}

type headlineFunc func(*exposure.Stats) float64

func maxHeadline(s *exposure.Stats) float64  { return s.MaxDensity }
func meanHeadline(s *exposure.Stats) float64 { return s.MeanDensity }

// stage aggregates one layer, converting data-availability failures into
// warnings so later stages still run.
func (a *Analyzer) stage(ctx context.Context, result *Result, log *zap.Logger,
	layer margins.Layer, g *geos.Geom, mode exposure.AreaMode, threshold float64, headline headlineFunc,
) {
	if g == nil {
		a.warn(result, log, layer, "layer absent from input, skipping")
		return
	}
	if g.IsEmpty() {
		a.warn(result, log, layer, "layer geometry is empty, skipping")
		return
	}

	log.Info("analyzing layer", zap.String("layer", string(layer)))

	stats, cells, err := a.agg.Aggregate(ctx, g, mode)
	if err != nil {
		a.warn(result, log, layer, fmt.Sprintf("no statistics: %s", eris.Cause(err).Error()))
		return
	}

	h := headline(stats)
	result.Layers = append(result.Layers, &LayerResult{
		Layer:     layer,
		Stats:     stats,
		Headline:  h,
		Threshold: threshold,
		Exceeds:   h > threshold,
		Cells:     cells,
	})

	log.Info("layer analyzed",
		zap.String("layer", string(layer)),
		zap.Float64("total_population", stats.TotalPopulation),
		zap.Float64("area_km2", stats.AreaKm2),
		zap.Float64("headline_density", h),
		zap.Bool("exceeds_threshold", h > threshold),
	)
}

func (a *Analyzer) warn(result *Result, log *zap.Logger, layer margins.Layer, msg string) {
	log.Warn(msg, zap.String("layer", string(layer)))
	result.Warnings = append(result.Warnings, Warning{
		Stage:   string(layer),
		Message: msg,
	})
}
