// Package features builds the leakage-free model inputs: cyclical month
// encodings, strictly past-only lags and rolling statistics on anomalies,
// and the rolling-origin folds used for backtesting.
package features

import (
	"database/sql"
	"math"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// Config toggles the optional long-memory features.
type Config struct {
	EnableLag24      bool
	EnableRollMean12 bool
}

// MonthEncoding returns the cyclical seasonality encoding for a calendar
// month. Ordinal or one-hot encodings would lose Dec-Jan adjacency.
func MonthEncoding(month int) (monSin, monCos float64) {
	theta := 2 * math.Pi * float64(month) / 12
	return math.Sin(theta), math.Cos(theta)
}

func null() sql.NullFloat64 { return sql.NullFloat64{} }

func valid(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Build derives one FeatureRow per anomaly record for a single country.
// Lags and rolling windows are resolved through the monthly time index, so a
// gap in the series yields NA rather than silently reaching across it. No
// feature ever reads an index >= the row's own index; the target reads
// exactly index+1.
func Build(recs []models.AnomalyRecord, cfg Config) []models.FeatureRow {
	anomAt := make(map[int]float64, len(recs))
	for _, r := range recs {
		anomAt[models.TimeIndex(r.Year, r.Month)] = r.AnomalyC
	}

	lag := func(k, n int) sql.NullFloat64 {
		if v, ok := anomAt[k-n]; ok {
			return valid(v)
		}
		return null()
	}

	// rollWindow returns mean and population stddev over {k-1 .. k-n},
	// NA unless the window is complete.
	rollWindow := func(k, n int) (mean, std sql.NullFloat64) {
		sum := 0.0
		vals := make([]float64, 0, n)
		for i := 1; i <= n; i++ {
			v, ok := anomAt[k-i]
			if !ok {
				return null(), null()
			}
			vals = append(vals, v)
			sum += v
		}
		m := sum / float64(n)
		ss := 0.0
		for _, v := range vals {
			ss += (v - m) * (v - m)
		}
		return valid(m), valid(math.Sqrt(ss / float64(n)))
	}

	rows := make([]models.FeatureRow, 0, len(recs))
	for _, r := range recs {
		k := models.TimeIndex(r.Year, r.Month)
		monSin, monCos := MonthEncoding(r.Month)

		row := models.FeatureRow{
			Country:   r.Country,
			Year:      r.Year,
			Month:     r.Month,
			AnomalyC:  r.AnomalyC,
			MonSin:    monSin,
			MonCos:    monCos,
			AnomLag1:  lag(k, 1),
			AnomLag12: lag(k, 12),
		}
		row.RollMean3, row.RollStd3 = rollWindow(k, 3)
		if cfg.EnableLag24 {
			row.AnomLag24 = lag(k, 24)
		}
		if cfg.EnableRollMean12 {
			row.RollMean12, _ = rollWindow(k, 12)
		}
		if v, ok := anomAt[k+1]; ok {
			row.Target = valid(v)
		}
		rows = append(rows, row)
	}
	return rows
}

// Complete reports whether a row has every required feature and the target,
// i.e. it survived warm-up removal and is eligible for training.
func Complete(row models.FeatureRow, cfg Config) bool {
	required := []sql.NullFloat64{row.AnomLag1, row.AnomLag12, row.RollMean3, row.RollStd3, row.Target}
	if cfg.EnableLag24 {
		required = append(required, row.AnomLag24)
	}
	if cfg.EnableRollMean12 {
		required = append(required, row.RollMean12)
	}
	for _, f := range required {
		if !f.Valid {
			return false
		}
	}
	return true
}

// TrainingRows applies warm-up removal: only rows with all required lags,
// rolling stats and the target are eligible for training or evaluation.
func TrainingRows(rows []models.FeatureRow, cfg Config) []models.FeatureRow {
	out := make([]models.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if Complete(r, cfg) {
			out = append(out, r)
		}
	}
	return out
}

// Names lists the feature columns in model order.
func Names(cfg Config) []string {
	names := []string{"mon_sin", "mon_cos", "anom_lag1", "anom_lag12", "roll_mean_3", "roll_std_3"}
	if cfg.EnableLag24 {
		names = append(names, "anom_lag24")
	}
	if cfg.EnableRollMean12 {
		names = append(names, "roll_mean_12")
	}
	return names
}

// Vector extracts the feature values of a complete row in Names order.
func Vector(row models.FeatureRow, cfg Config) []float64 {
	v := []float64{row.MonSin, row.MonCos, row.AnomLag1.Float64, row.AnomLag12.Float64,
		row.RollMean3.Float64, row.RollStd3.Float64}
	if cfg.EnableLag24 {
		v = append(v, row.AnomLag24.Float64)
	}
	if cfg.EnableRollMean12 {
		v = append(v, row.RollMean12.Float64)
	}
	return v
}
