// Package climate implements the climate-normal stages of the pipeline:
// reference-period selection, climatology and anomaly computation, outlier
// flagging and per-country sanity statistics. All functions are pure over a
// single country's chronological series.
package climate

import (
	"errors"
	"fmt"
	"math"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// WindowLen is the length of a climate-normal window in years.
const WindowLen = 30

var (
	// ErrNoData means a country has no usable observations at all.
	ErrNoData = errors.New("no observations")

	// ErrIncompleteClimatology means some calendar month has zero valid
	// years inside the chosen reference window. The country is excluded
	// downstream.
	ErrIncompleteClimatology = errors.New("incomplete climatology")
)

// ReferenceConfig controls reference-window selection.
type ReferenceConfig struct {
	DefaultStart int // first year of the preferred window
	DefaultEnd   int // last year of the preferred window (start + 29)
	MinPerMonth  int // valid years each calendar month must reach
}

// completeness counts distinct years with a reading per calendar month
// inside [y0, y1].
func completeness(obs []models.Observation, y0, y1 int) [12]int {
	seen := make(map[[2]int]bool)
	var counts [12]int
	for _, o := range obs {
		if o.Year < y0 || o.Year > y1 {
			continue
		}
		key := [2]int{o.Month, o.Year}
		if seen[key] {
			continue
		}
		seen[key] = true
		counts[o.Month-1]++
	}
	return counts
}

func scoreWindow(counts [12]int, nMin int) (monthsMeeting, total int) {
	for _, c := range counts {
		if c >= nMin {
			monthsMeeting++
		}
		total += c
	}
	return monthsMeeting, total
}

// SelectReferencePeriod picks the 30-year climate-normal window for one
// country. The default window wins outright when every calendar month has at
// least MinPerMonth valid years. Otherwise every candidate window across the
// available history is scored by (months meeting the threshold, total
// completeness, center closest to the default center); exact center ties go
// to the earlier start year. A best-effort window that still misses the
// threshold is returned with FallbackUsed set and FullCoverage false
// (a recorded shortfall, not an error).
func SelectReferencePeriod(obs []models.Observation, cfg ReferenceConfig) (models.ReferencePeriod, error) {
	if len(obs) == 0 {
		return models.ReferencePeriod{}, ErrNoData
	}
	country := obs[0].Country

	yMin, yMax := obs[0].Year, obs[0].Year
	for _, o := range obs {
		if o.Year < yMin {
			yMin = o.Year
		}
		if o.Year > yMax {
			yMax = o.Year
		}
	}

	defCounts := completeness(obs, cfg.DefaultStart, cfg.DefaultEnd)
	defMeeting, defTotal := scoreWindow(defCounts, cfg.MinPerMonth)
	if defMeeting == 12 {
		return models.ReferencePeriod{
			Country:              country,
			RefStart:             cfg.DefaultStart,
			RefEnd:               cfg.DefaultEnd,
			MonthsMeetingMin:     defMeeting,
			TotalMonthCounts:     defTotal,
			FallbackUsed:         false,
			FullCoverage:         true,
			CompletenessPerMonth: defCounts,
		}, nil
	}

	defaultCenter := float64(cfg.DefaultStart+cfg.DefaultEnd) / 2.0

	var best *models.ReferencePeriod
	var bestMeeting, bestTotal int
	var bestDist float64

	for start := yMin; start <= yMax-WindowLen+1; start++ {
		end := start + WindowLen - 1
		counts := completeness(obs, start, end)
		meeting, total := scoreWindow(counts, cfg.MinPerMonth)
		dist := math.Abs(float64(start+end)/2.0 - defaultCenter)

		better := false
		switch {
		case best == nil:
			better = true
		case meeting != bestMeeting:
			better = meeting > bestMeeting
		case total != bestTotal:
			better = total > bestTotal
		case dist != bestDist:
			better = dist < bestDist
		default:
			// Exact center tie: the earlier start already won, keep it.
			better = false
		}
		if better {
			best = &models.ReferencePeriod{
				Country:              country,
				RefStart:             start,
				RefEnd:               end,
				MonthsMeetingMin:     meeting,
				TotalMonthCounts:     total,
				FallbackUsed:         true,
				FullCoverage:         meeting == 12,
				CompletenessPerMonth: counts,
			}
			bestMeeting, bestTotal, bestDist = meeting, total, dist
		}
	}

	if best == nil {
		// History shorter than a full window: use everything available.
		counts := completeness(obs, yMin, yMin+WindowLen-1)
		meeting, total := scoreWindow(counts, cfg.MinPerMonth)
		return models.ReferencePeriod{
			Country:              country,
			RefStart:             yMin,
			RefEnd:               yMin + WindowLen - 1,
			MonthsMeetingMin:     meeting,
			TotalMonthCounts:     total,
			FallbackUsed:         true,
			FullCoverage:         meeting == 12,
			CompletenessPerMonth: counts,
		}, nil
	}
	return *best, nil
}

// ShortfallWarning describes a reference window that failed the completeness
// threshold; the pipeline records it and proceeds.
func ShortfallWarning(rp models.ReferencePeriod, cfg ReferenceConfig) string {
	if rp.FullCoverage {
		return ""
	}
	return fmt.Sprintf("reference window shortfall for %s: window %d-%d has %d/12 months with >=%d valid years",
		rp.Country, rp.RefStart, rp.RefEnd, rp.MonthsMeetingMin, cfg.MinPerMonth)
}
