package climate

import (
	"database/sql"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// madScale rescales the median absolute deviation to a normal-consistent
// standard deviation estimate.
const madScale = 1.4826

// OutlierThresholds are the advisory flag limits.
type OutlierThresholds struct {
	AbsRangeC float64 // |temp_c| beyond this is physically implausible
	JumpC     float64 // month-to-month absolute change limit
	Z         float64 // classic z-score limit
	ZRobust   float64 // robust z-score limit
}

func DefaultOutlierThresholds() OutlierThresholds {
	return OutlierThresholds{AbsRangeC: 60, JumpC: 15, Z: 3, ZRobust: 4}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// FlagOutliers annotates a country's chronological series with classic and
// robust z-scores per calendar-month group plus range and jump flags. The
// input rows are never modified or removed; flagging is advisory only.
func FlagOutliers(obs []models.Observation, th OutlierThresholds) []models.OutlierFlags {
	byMonth := make(map[int][]float64, 12)
	for _, o := range obs {
		byMonth[o.Month] = append(byMonth[o.Month], o.TempC)
	}

	type monthStats struct {
		mean, std, med, mad float64
	}
	stats := make(map[int]monthStats, 12)
	for m, vals := range byMonth {
		mean, std := stat.MeanStdDev(vals, nil)
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		med := median(sorted)
		devs := make([]float64, len(sorted))
		for i, v := range sorted {
			devs[i] = math.Abs(v - med)
		}
		sort.Float64s(devs)
		stats[m] = monthStats{mean: mean, std: std, med: med, mad: median(devs)}
	}

	flags := make([]models.OutlierFlags, len(obs))
	for i, o := range obs {
		ms := stats[o.Month]
		f := models.OutlierFlags{
			Country:      o.Country,
			Year:         o.Year,
			Month:        o.Month,
			FlagAbsRange: math.Abs(o.TempC) > th.AbsRangeC,
		}
		if ms.std > 0 && !math.IsNaN(ms.std) {
			z := (o.TempC - ms.mean) / ms.std
			f.Z = sql.NullFloat64{Float64: z, Valid: true}
			f.FlagZGt3 = math.Abs(z) > th.Z
		}
		if ms.mad > 0 {
			zr := (o.TempC - ms.med) / (madScale * ms.mad)
			f.ZRobust = sql.NullFloat64{Float64: zr, Valid: true}
			f.FlagZRobGt4 = math.Abs(zr) > th.ZRobust
		}
		// Jump flag only between truly consecutive months; gaps in the
		// series do not count.
		if i > 0 {
			prev := obs[i-1]
			if models.TimeIndex(o.Year, o.Month)-models.TimeIndex(prev.Year, prev.Month) == 1 {
				f.FlagJumpGt15 = math.Abs(o.TempC-prev.TempC) > th.JumpC
			}
		}
		f.FlagAnyOutlier = f.FlagAbsRange || f.FlagJumpGt15 || f.FlagZGt3 || f.FlagZRobGt4
		flags[i] = f
	}
	return flags
}

// OutlierShare is the fraction of rows with any flag set.
func OutlierShare(flags []models.OutlierFlags) float64 {
	if len(flags) == 0 {
		return 0
	}
	n := 0
	for _, f := range flags {
		if f.FlagAnyOutlier {
			n++
		}
	}
	return float64(n) / float64(len(flags))
}
