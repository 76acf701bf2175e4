// Package pipeline orchestrates the per-country stages end to end: reference
// window, climatology, anomalies, outlier flags, features, folds, backtest,
// final forecast and annual aggregation. Countries are processed by a worker
// pool; a single writer goroutine owns all database writes.
package pipeline

import (
	"runtime"

	"github.com/maxhuegel/EmissionWiz/internal/aggregate"
	"github.com/maxhuegel/EmissionWiz/internal/climate"
	"github.com/maxhuegel/EmissionWiz/internal/features"
	"github.com/maxhuegel/EmissionWiz/internal/forecast"
	"github.com/maxhuegel/EmissionWiz/internal/train"
)

// Config is assembled once at startup and treated as immutable for the whole
// run; per-country work never mutates shared state.
type Config struct {
	Reference climate.ReferenceConfig
	Outliers  climate.OutlierThresholds
	Features  features.Config
	Folds     features.FoldConfig
	Train     train.Config
	Policy    forecast.Policy
	Aggregate aggregate.Config

	// HorizonMonths is the length of the final forward projection.
	HorizonMonths int
	Buckets       []train.Bucket
	Workers       int
}

func DefaultConfig() Config {
	return Config{
		Reference: climate.ReferenceConfig{
			DefaultStart: 1981,
			DefaultEnd:   2010,
			MinPerMonth:  25,
		},
		Outliers: climate.DefaultOutlierThresholds(),
		Features: features.Config{},
		Folds: features.FoldConfig{
			MinTrainRows: 120,
			StepMonths:   12,
			Horizon:      60,
		},
		Train:         train.DefaultConfig(),
		Policy:        forecast.DefaultPolicy(),
		Aggregate:     aggregate.DefaultConfig(),
		HorizonMonths: 60,
		Buckets:       train.DefaultBuckets(),
		Workers:       runtime.NumCPU(),
	}
}
