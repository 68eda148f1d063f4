package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/aldrones/groundrisk/internal/analysis"
	"github.com/aldrones/groundrisk/internal/exposure"
	"github.com/aldrones/groundrisk/internal/geo"
	"github.com/aldrones/groundrisk/internal/margins"
	"github.com/aldrones/groundrisk/internal/popgrid"
)

func newFetcher() *popgrid.Fetcher {
	return popgrid.NewFetcher(popgrid.FetchOptions{
		IndexURL:   cfg.Grid.IndexURL,
		BaseURL:    cfg.Grid.BaseURL,
		CacheDir:   cfg.Grid.CacheDir,
		Timeout:    time.Duration(cfg.Grid.TimeoutSecs) * time.Second,
		RatePerSec: cfg.Grid.RatePerSec,
	})
}

// initAnalyzer wires the population grid index, shard loader and aggregator
// into an analyzer. The index download happens here, so the first call on a
// cold cache hits the network.
func initAnalyzer(ctx context.Context, reproj *geo.Reprojector) (*analysis.Analyzer, error) {
	fetcher := newFetcher()

	index, err := popgrid.LoadIndex(ctx, fetcher, reproj)
	if err != nil {
		return nil, eris.Wrap(err, "load grid index")
	}

	loader := popgrid.NewLoader(fetcher, reproj)
	agg := exposure.New(index, loader, reproj)

	return analysis.New(agg, analysis.Options{
		OperationalThreshold: cfg.Analysis.OperationalThreshold,
		AdjacentThreshold:    cfg.Analysis.AdjacentThreshold,
	}), nil
}

func defaultParams() margins.Params {
	return margins.Params{
		Height:  cfg.Margins.Height,
		CVSize:  cfg.Margins.CVSize,
		AdjSize: cfg.Margins.AdjSize,
		Corner:  margins.CornerStyle(cfg.Margins.CornerStyle),
	}
}
