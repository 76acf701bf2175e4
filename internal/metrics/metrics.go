package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CountriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissionwiz_countries_processed_total",
			Help: "Countries processed by the pipeline, by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "emissionwiz_stage_duration_seconds",
			Help:    "Wall time per pipeline stage per country",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	ObservationsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emissionwiz_observations_ingested_total",
			Help: "Monthly observations successfully ingested",
		},
		[]string{"source"},
	)

	ForecastSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emissionwiz_forecast_steps_total",
			Help: "Recursive forecast steps produced",
		},
	)

	ReferenceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "emissionwiz_reference_fallbacks_total",
			Help: "Countries whose reference window fell back from the default",
		},
	)
)
