package climate

import (
	"fmt"
	"math"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// ZeroMeanTolerance is the allowed absolute deviation of the per-month mean
// anomaly inside the reference window.
const ZeroMeanTolerance = 0.15

// ComputeClimatology returns the 12 per-month climate-normal means for one
// country, averaged over years inside the reference window. It fails with
// ErrIncompleteClimatology when any month has no valid year in the window.
func ComputeClimatology(obs []models.Observation, rp models.ReferencePeriod) ([]models.ClimatologyEntry, error) {
	var sum [12]float64
	var n [12]int
	for _, o := range obs {
		if o.Year < rp.RefStart || o.Year > rp.RefEnd {
			continue
		}
		sum[o.Month-1] += o.TempC
		n[o.Month-1]++
	}

	entries := make([]models.ClimatologyEntry, 0, 12)
	for m := 1; m <= 12; m++ {
		if n[m-1] == 0 {
			return nil, fmt.Errorf("%w: %s month %d has no years in %d-%d",
				ErrIncompleteClimatology, rp.Country, m, rp.RefStart, rp.RefEnd)
		}
		entries = append(entries, models.ClimatologyEntry{
			Country:   rp.Country,
			Month:     m,
			ClimTempC: sum[m-1] / float64(n[m-1]),
			RefStart:  rp.RefStart,
			RefEnd:    rp.RefEnd,
		})
	}
	return entries, nil
}

// ComputeAnomalies subtracts the monthly climatology from every observation
// in the full series, not only inside the reference window.
func ComputeAnomalies(obs []models.Observation, clim []models.ClimatologyEntry) []models.AnomalyRecord {
	byMonth := make(map[int]float64, 12)
	for _, e := range clim {
		byMonth[e.Month] = e.ClimTempC
	}

	recs := make([]models.AnomalyRecord, 0, len(obs))
	for _, o := range obs {
		c, ok := byMonth[o.Month]
		if !ok {
			continue
		}
		recs = append(recs, models.AnomalyRecord{
			Country:   o.Country,
			Year:      o.Year,
			Month:     o.Month,
			TempC:     o.TempC,
			ClimTempC: c,
			AnomalyC:  o.TempC - c,
		})
	}
	return recs
}

// CheckZeroMean verifies the anomaly post-condition: inside the reference
// window the per-month mean anomaly must be within ZeroMeanTolerance of zero
// for all 12 months. A violation is a data-quality warning, not a failure.
func CheckZeroMean(recs []models.AnomalyRecord, rp models.ReferencePeriod) bool {
	var sum [12]float64
	var n [12]int
	for _, r := range recs {
		if r.Year < rp.RefStart || r.Year > rp.RefEnd {
			continue
		}
		sum[r.Month-1] += r.AnomalyC
		n[r.Month-1]++
	}
	for m := 0; m < 12; m++ {
		if n[m] == 0 {
			return false
		}
		if math.Abs(sum[m]/float64(n[m])) >= ZeroMeanTolerance {
			return false
		}
	}
	return true
}
