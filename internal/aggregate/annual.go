// Package aggregate folds monthly series and forecasts into the annual
// per-country payload consumed by the globe front-end.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// ErrInsufficientMonths means a country-year lacks full 12-month coverage;
// partial years are excluded from annual aggregation, never averaged.
var ErrInsufficientMonths = errors.New("insufficient months for annual aggregation")

// Config fixes the multi-year base period for the payload's anomaly column.
type Config struct {
	BaseStart int
	BaseEnd   int
}

func DefaultConfig() Config {
	return Config{BaseStart: 1991, BaseEnd: 2020}
}

// AnnualMean averages exactly 12 monthly values for one country-year.
func AnnualMean(monthly map[int]float64) (float64, error) {
	sum := 0.0
	for m := 1; m <= 12; m++ {
		v, ok := monthly[m]
		if !ok {
			return 0, fmt.Errorf("%w: %d/12 months present", ErrInsufficientMonths, len(monthly))
		}
		sum += v
	}
	return sum / 12, nil
}

// BuildCountryYears merges a country's observed months with its forecast
// months (those strictly after the last observation) into one continuous
// annual table, then computes the fixed base mean and anom = temp - base.
// Country-years without full coverage are skipped and reported as warnings.
func BuildCountryYears(country string, obs []models.Observation, fc []models.ForecastRecord, cfg Config) ([]models.AnnualAggregate, []string) {
	tempAt := make(map[int]float64)
	lastObserved := -1
	for _, o := range obs {
		k := models.TimeIndex(o.Year, o.Month)
		tempAt[k] = o.TempC
		if k > lastObserved {
			lastObserved = k
		}
	}
	forecastFrom := -1
	for _, f := range fc {
		k := models.TimeIndex(f.Year, f.Month)
		if k <= lastObserved {
			continue
		}
		tempAt[k] = f.PredTempC
		if forecastFrom == -1 || k < forecastFrom {
			forecastFrom = k
		}
	}

	byYear := make(map[int]map[int]float64)
	years := make([]int, 0)
	for k, v := range tempAt {
		y, m := models.FromTimeIndex(k)
		if byYear[y] == nil {
			byYear[y] = make(map[int]float64)
			years = append(years, y)
		}
		byYear[y][m] = v
	}
	sort.Ints(years)

	type annual struct {
		year     int
		temp     float64
		forecast bool
	}
	annuals := make([]annual, 0, len(years))
	var warnings []string
	for _, y := range years {
		mean, err := AnnualMean(byYear[y])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s %d: %v", country, y, err))
			continue
		}
		isForecast := forecastFrom != -1 && models.TimeIndex(y, 12) >= forecastFrom
		annuals = append(annuals, annual{year: y, temp: mean, forecast: isForecast})
	}
	if len(annuals) == 0 {
		return nil, warnings
	}

	// Base is the mean annual temperature over the configured period;
	// countries without observed years in that period fall back to the
	// mean over all observed years.
	var baseSum float64
	var baseN int
	for _, a := range annuals {
		if a.year >= cfg.BaseStart && a.year <= cfg.BaseEnd && !a.forecast {
			baseSum += a.temp
			baseN++
		}
	}
	if baseN == 0 {
		for _, a := range annuals {
			if !a.forecast {
				baseSum += a.temp
				baseN++
			}
		}
	}
	if baseN == 0 {
		warnings = append(warnings, fmt.Sprintf("%s: no observed years for base period", country))
		return nil, warnings
	}
	base := baseSum / float64(baseN)

	out := make([]models.AnnualAggregate, 0, len(annuals))
	for _, a := range annuals {
		source := "observed"
		if a.forecast {
			source = "forecast"
		}
		out = append(out, models.AnnualAggregate{
			Country: country,
			Year:    a.year,
			TempC:   a.temp,
			Base:    base,
			Anom:    a.temp - base,
			Source:  source,
		})
	}
	return out, warnings
}
