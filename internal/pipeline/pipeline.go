package pipeline

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/maxhuegel/EmissionWiz/internal/aggregate"
	"github.com/maxhuegel/EmissionWiz/internal/climate"
	"github.com/maxhuegel/EmissionWiz/internal/features"
	"github.com/maxhuegel/EmissionWiz/internal/forecast"
	"github.com/maxhuegel/EmissionWiz/internal/metrics"
	"github.com/maxhuegel/EmissionWiz/internal/models"
	"github.com/maxhuegel/EmissionWiz/internal/store"
	"github.com/maxhuegel/EmissionWiz/internal/train"
)

type Pipeline struct {
	store *store.Store
	cfg   Config
}

func New(st *store.Store, cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{store: st, cfg: cfg}
}

// Summary is the run outcome handed to reporting.
type Summary struct {
	Processed int
	Failed    int
	Warnings  []string
	ByCountry []train.BucketMetric
	Global    []train.BucketMetric
	Decisions []train.Decision
	Checks    []models.CountryCheck
}

type countryJob struct {
	country string
	obs     []models.Observation
}

type countryResult struct {
	country   string
	rp        models.ReferencePeriod
	clim      []models.ClimatologyEntry
	anomalies []models.AnomalyRecord
	flags     []models.OutlierFlags
	rows      []models.FeatureRow
	folds     []models.Fold
	forecasts []models.ForecastRecord
	years     []models.AnnualAggregate
	eval      *train.Evaluator
	check     models.CountryCheck
	warnings  []string

	// err isolates a bad country; fatal aborts the whole run.
	err   error
	fatal error
}

// Run processes every country in the store. Countries fail independently
// except for leakage, which indicates a broken split and aborts everything.
func (p *Pipeline) Run() (*Summary, error) {
	countries, err := p.store.GetCountries()
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	if len(countries) == 0 {
		return nil, climate.ErrNoData
	}

	// Preload all series up front so workers never touch the database.
	jobsData := make([]countryJob, 0, len(countries))
	for _, c := range countries {
		obs, err := p.store.GetObservations(c)
		if err != nil {
			return nil, fmt.Errorf("load observations for %s: %w", c, err)
		}
		jobsData = append(jobsData, countryJob{country: c, obs: obs})
	}

	numWorkers := p.cfg.Workers
	if numWorkers > len(jobsData) {
		numWorkers = len(jobsData)
	}

	jobs := make(chan countryJob)
	results := make(chan countryResult, len(jobsData))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- p.processCountry(job)
			}
		}()
	}
	go func() {
		for _, j := range jobsData {
			jobs <- j
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Fan-in: this goroutine is the only database writer.
	summary := &Summary{}
	eval := train.NewEvaluator(p.cfg.Buckets)
	for res := range results {
		if res.fatal != nil {
			return nil, res.fatal
		}
		summary.Warnings = append(summary.Warnings, res.warnings...)
		if res.err != nil {
			summary.Failed++
			metrics.CountriesProcessed.WithLabelValues("failed").Inc()
			log.Printf("country %s failed: %v", res.country, res.err)
			if err := p.store.UpsertCountryCheck(res.check); err != nil {
				return nil, fmt.Errorf("record failure for %s: %w", res.country, err)
			}
			continue
		}
		if err := p.persist(res); err != nil {
			return nil, fmt.Errorf("persist %s: %w", res.country, err)
		}
		if res.eval != nil {
			eval.Merge(res.eval)
		}
		summary.Processed++
		metrics.CountriesProcessed.WithLabelValues("ok").Inc()
	}

	summary.ByCountry = eval.ByCountry()
	summary.Global = train.Global(summary.ByCountry)
	summary.Decisions = train.Decide(summary.ByCountry, p.cfg.Buckets)
	summary.Checks, err = p.store.GetCountryChecks()
	if err != nil {
		return nil, fmt.Errorf("load consistency report: %w", err)
	}
	return summary, nil
}

func (p *Pipeline) persist(res countryResult) error {
	if err := p.store.UpsertReferencePeriod(res.rp); err != nil {
		return err
	}
	if err := p.store.ReplaceClimatology(res.country, res.clim); err != nil {
		return err
	}
	if err := p.store.UpsertAnomalies(res.anomalies); err != nil {
		return err
	}
	if err := p.store.UpsertOutlierFlags(res.flags); err != nil {
		return err
	}
	if err := p.store.UpsertFeatures(res.rows); err != nil {
		return err
	}
	if err := p.store.ReplaceFolds(res.country, res.folds); err != nil {
		return err
	}
	if err := p.store.UpsertForecasts(res.forecasts); err != nil {
		return err
	}
	if err := p.store.UpsertCountryYears(res.years); err != nil {
		return err
	}
	return p.store.UpsertCountryCheck(res.check)
}

func fail(country string, err error) countryResult {
	return countryResult{
		country: country,
		err:     err,
		check:   models.CountryCheck{Country: country, Failure: err.Error()},
	}
}

func (p *Pipeline) processCountry(job countryJob) countryResult {
	country := job.country
	res := countryResult{country: country}

	if len(job.obs) == 0 {
		return fail(country, climate.ErrNoData)
	}

	stageStart := time.Now()
	rp, err := climate.SelectReferencePeriod(job.obs, p.cfg.Reference)
	if err != nil {
		return fail(country, err)
	}
	res.rp = rp
	if rp.FallbackUsed {
		metrics.ReferenceFallbacks.Inc()
	}
	if w := climate.ShortfallWarning(rp, p.cfg.Reference); w != "" {
		res.warnings = append(res.warnings, w)
	}

	res.clim, err = climate.ComputeClimatology(job.obs, rp)
	if err != nil {
		return fail(country, err)
	}
	res.anomalies = climate.ComputeAnomalies(job.obs, res.clim)
	zeroMeanOK := climate.CheckZeroMean(res.anomalies, rp)
	if !zeroMeanOK {
		res.warnings = append(res.warnings,
			fmt.Sprintf("%s: mean anomaly in reference window exceeds %.2fC", country, climate.ZeroMeanTolerance))
	}
	res.flags = climate.FlagOutliers(job.obs, p.cfg.Outliers)
	metrics.StageDuration.WithLabelValues("climatology").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	res.rows = features.Build(res.anomalies, p.cfg.Features)
	res.folds = features.MakeFolds(res.rows, p.cfg.Features, p.cfg.Folds)
	for _, f := range res.folds {
		if err := features.VerifyFold(f); err != nil {
			res.fatal = err
			return res
		}
	}
	metrics.StageDuration.WithLabelValues("features").Observe(time.Since(stageStart).Seconds())

	climByMonth := make(map[int]float64, 12)
	for _, e := range res.clim {
		climByMonth[e.Month] = e.ClimTempC
	}
	anomAt := make(map[int]float64, len(res.anomalies))
	tempAt := make(map[int]float64, len(res.anomalies))
	for _, a := range res.anomalies {
		k := models.TimeIndex(a.Year, a.Month)
		anomAt[k] = a.AnomalyC
		tempAt[k] = a.TempC
	}

	stageStart = time.Now()
	res.eval = train.NewEvaluator(p.cfg.Buckets)
	for _, f := range res.folds {
		trainRows, _ := features.SplitByCutoff(res.rows, p.cfg.Features, f.Cutoff, f.ValEnd)
		model, err := train.Fit(trainRows, p.cfg.Features, p.cfg.Train)
		if err != nil {
			res.warnings = append(res.warnings, fmt.Sprintf("%s fold %d: %v", country, f.FoldID, err))
			continue
		}
		st := forecast.NewState(res.anomalies, f.Cutoff)
		steps := forecast.Run(model, p.cfg.Features, climByMonth, st, f.ValEnd-f.Cutoff, p.cfg.Policy)
		for _, step := range steps {
			truth, ok := tempAt[step.Key]
			if !ok {
				continue
			}
			// Every forecaster is scored on the identical grid; a point
			// the lag-12 baseline cannot produce is dropped for all three.
			lag12, ok := train.Lag12Anomaly(anomAt, step.Key, f.Cutoff)
			if !ok {
				continue
			}
			res.eval.Add(country, train.WhoModel, step.Horizon, step.PredTempC, truth)
			res.eval.Add(country, train.WhoClimatology, step.Horizon,
				climByMonth[step.Month]+train.ClimatologyAnomaly(), truth)
			res.eval.Add(country, train.WhoLag12, step.Horizon, climByMonth[step.Month]+lag12, truth)
		}
		res.forecasts = append(res.forecasts, stepsToRecords(country, f.Cutoff, steps, tempAt)...)
	}
	metrics.StageDuration.WithLabelValues("backtest").Observe(time.Since(stageStart).Seconds())

	// Final forward projection from the last observed month.
	stageStart = time.Now()
	var finalForecasts []models.ForecastRecord
	complete := features.TrainingRows(res.rows, p.cfg.Features)
	if len(complete) >= p.cfg.Train.MinTrainRows {
		model, err := train.Fit(complete, p.cfg.Features, p.cfg.Train)
		if err != nil {
			res.warnings = append(res.warnings, fmt.Sprintf("%s final fit: %v", country, err))
		} else {
			last := res.anomalies[len(res.anomalies)-1]
			cutoff := models.TimeIndex(last.Year, last.Month)
			st := forecast.NewState(res.anomalies, cutoff)
			steps := forecast.Run(model, p.cfg.Features, climByMonth, st, p.cfg.HorizonMonths, p.cfg.Policy)
			finalForecasts = stepsToRecords(country, cutoff, steps, tempAt)
			res.forecasts = append(res.forecasts, finalForecasts...)
			metrics.ForecastSteps.Add(float64(len(steps)))
		}
	} else {
		res.warnings = append(res.warnings,
			fmt.Sprintf("%s: %d complete rows, below %d, skipping forecast", country, len(complete), p.cfg.Train.MinTrainRows))
	}
	metrics.StageDuration.WithLabelValues("forecast").Observe(time.Since(stageStart).Seconds())

	years, aggWarnings := aggregate.BuildCountryYears(country, job.obs, finalForecasts, p.cfg.Aggregate)
	res.years = years
	res.warnings = append(res.warnings, aggWarnings...)

	res.check = models.CountryCheck{
		Country:         country,
		ClimatologyRows: len(res.clim),
		AnomalyRows:     len(res.anomalies),
		Climatology12OK: len(res.clim) == 12,
		MeanAnomInRefOK: sql.NullBool{Bool: zeroMeanOK, Valid: true},
	}
	if ac := climate.AutocorrLag12(res.anomalies); !math.IsNaN(ac) {
		res.check.AutocorrLag12 = sql.NullFloat64{Float64: ac, Valid: true}
	}
	if tr := climate.TrendPerDecade(res.anomalies); !math.IsNaN(tr) {
		res.check.TrendDecadeC = sql.NullFloat64{Float64: tr, Valid: true}
	}
	res.check.OutlierShare = sql.NullFloat64{Float64: climate.OutlierShare(res.flags), Valid: true}

	return res
}

func stepsToRecords(country string, cutoff int, steps []forecast.Step, tempAt map[int]float64) []models.ForecastRecord {
	recs := make([]models.ForecastRecord, 0, len(steps))
	for _, s := range steps {
		r := models.ForecastRecord{
			Country:      country,
			Year:         s.Year,
			Month:        s.Month,
			Cutoff:       cutoff,
			HorizonStep:  s.Horizon,
			PredAnomC:    s.PredAnomC,
			BlendedAnomC: s.BlendedAnomC,
			PredTempC:    s.PredTempC,
		}
		if truth, ok := tempAt[s.Key]; ok {
			r.TruthTempC = sql.NullFloat64{Float64: truth, Valid: true}
		}
		recs = append(recs, r)
	}
	return recs
}

// IsDataError reports whether an error is a recognized per-country data
// problem rather than a programming fault.
func IsDataError(err error) bool {
	return errors.Is(err, climate.ErrNoData) || errors.Is(err, climate.ErrIncompleteClimatology)
}
