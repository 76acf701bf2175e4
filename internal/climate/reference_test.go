package climate

import (
	"errors"
	"math"
	"testing"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// monthlySeries builds a full monthly series for [startYear, endYear], with
// temp from f and months removed by skip.
func monthlySeries(country string, startYear, endYear int, f func(year, month int) float64, skip func(year, month int) bool) []models.Observation {
	var obs []models.Observation
	for y := startYear; y <= endYear; y++ {
		for m := 1; m <= 12; m++ {
			if skip != nil && skip(y, m) {
				continue
			}
			obs = append(obs, models.Observation{Country: country, Year: y, Month: m, TempC: f(y, m)})
		}
	}
	return obs
}

func seasonal(year, month int) float64 {
	return 10 + 8*math.Sin(2*math.Pi*float64(month)/12)
}

func defaultRefConfig() ReferenceConfig {
	return ReferenceConfig{DefaultStart: 1991, DefaultEnd: 2020, MinPerMonth: 24}
}

func TestSelectReferencePeriod_DefaultWindow(t *testing.T) {
	obs := monthlySeries("DE", 1961, 2024, seasonal, nil)

	rp, err := SelectReferencePeriod(obs, defaultRefConfig())
	if err != nil {
		t.Fatalf("SelectReferencePeriod: %v", err)
	}
	if rp.RefStart != 1991 || rp.RefEnd != 2020 {
		t.Errorf("window = %d-%d, want 1991-2020", rp.RefStart, rp.RefEnd)
	}
	if rp.FallbackUsed {
		t.Error("FallbackUsed = true, want false")
	}
	if !rp.FullCoverage {
		t.Error("FullCoverage = false, want true")
	}
	for m, c := range rp.CompletenessPerMonth {
		if c != 30 {
			t.Errorf("month %d completeness = %d, want 30", m+1, c)
		}
	}
}

func TestSelectReferencePeriod_FallbackShiftsEarlier(t *testing.T) {
	// Series ends in 1995, so the default 1991-2020 window cannot be
	// complete. The best window is the latest full one, 1966-1995.
	obs := monthlySeries("AR", 1950, 1995, seasonal, nil)

	rp, err := SelectReferencePeriod(obs, defaultRefConfig())
	if err != nil {
		t.Fatalf("SelectReferencePeriod: %v", err)
	}
	if !rp.FallbackUsed {
		t.Error("FallbackUsed = false, want true")
	}
	if rp.RefStart != 1966 || rp.RefEnd != 1995 {
		t.Errorf("window = %d-%d, want 1966-1995", rp.RefStart, rp.RefEnd)
	}
	if !rp.FullCoverage {
		t.Error("FullCoverage = false, want true")
	}
}

func TestSelectReferencePeriod_CenterTieTakesEarlierStart(t *testing.T) {
	// July missing in 1990-2021 makes the 1989 and 1993 starts equal on
	// months meeting, total completeness and center distance.
	skip := func(y, m int) bool { return m == 7 && y >= 1990 && y <= 2021 }
	obs := monthlySeries("FR", 1989, 2022, seasonal, skip)

	cfg := ReferenceConfig{DefaultStart: 1991, DefaultEnd: 2020, MinPerMonth: 5}
	rp, err := SelectReferencePeriod(obs, cfg)
	if err != nil {
		t.Fatalf("SelectReferencePeriod: %v", err)
	}
	if rp.RefStart != 1989 {
		t.Errorf("RefStart = %d, want 1989 (earlier start on exact tie)", rp.RefStart)
	}
}

func TestSelectReferencePeriod_ShortHistory(t *testing.T) {
	obs := monthlySeries("MC", 2000, 2014, seasonal, nil)

	rp, err := SelectReferencePeriod(obs, defaultRefConfig())
	if err != nil {
		t.Fatalf("SelectReferencePeriod: %v", err)
	}
	if !rp.FallbackUsed {
		t.Error("FallbackUsed = false, want true")
	}
	if rp.RefStart != 2000 {
		t.Errorf("RefStart = %d, want 2000", rp.RefStart)
	}
	if rp.FullCoverage {
		t.Error("FullCoverage = true for a 15-year history, want false")
	}
	if w := ShortfallWarning(rp, defaultRefConfig()); w == "" {
		t.Error("ShortfallWarning empty, want a recorded shortfall")
	}
}

func TestSelectReferencePeriod_NoData(t *testing.T) {
	_, err := SelectReferencePeriod(nil, defaultRefConfig())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}
