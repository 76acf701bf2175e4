package climate

import (
	"errors"
	"math"
	"testing"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

func TestComputeClimatology(t *testing.T) {
	obs := monthlySeries("DE", 1991, 2020, seasonal, nil)
	rp := models.ReferencePeriod{Country: "DE", RefStart: 1991, RefEnd: 2020}

	clim, err := ComputeClimatology(obs, rp)
	if err != nil {
		t.Fatalf("ComputeClimatology: %v", err)
	}
	if len(clim) != 12 {
		t.Fatalf("len(clim) = %d, want 12", len(clim))
	}
	for i, e := range clim {
		if e.Month != i+1 {
			t.Errorf("clim[%d].Month = %d, want %d", i, e.Month, i+1)
		}
		want := seasonal(0, e.Month)
		if math.Abs(e.ClimTempC-want) > 1e-9 {
			t.Errorf("month %d clim = %f, want %f", e.Month, e.ClimTempC, want)
		}
	}
}

func TestComputeClimatology_MissingMonthFails(t *testing.T) {
	skip := func(y, m int) bool { return m == 2 }
	obs := monthlySeries("DE", 1991, 2020, seasonal, skip)
	rp := models.ReferencePeriod{Country: "DE", RefStart: 1991, RefEnd: 2020}

	_, err := ComputeClimatology(obs, rp)
	if !errors.Is(err, ErrIncompleteClimatology) {
		t.Fatalf("err = %v, want ErrIncompleteClimatology", err)
	}
}

func TestComputeAnomalies_ZeroMeanInWindow(t *testing.T) {
	// Linear warming trend plus seasonality. Inside the reference window
	// the per-month mean anomaly must vanish by construction.
	f := func(y, m int) float64 {
		return seasonal(y, m) + 0.02*float64(y-1961)
	}
	obs := monthlySeries("DE", 1961, 2024, f, nil)
	rp := models.ReferencePeriod{Country: "DE", RefStart: 1991, RefEnd: 2020}

	clim, err := ComputeClimatology(obs, rp)
	if err != nil {
		t.Fatalf("ComputeClimatology: %v", err)
	}
	recs := ComputeAnomalies(obs, clim)
	if len(recs) != len(obs) {
		t.Fatalf("len(anomalies) = %d, want %d (full series, not window only)", len(recs), len(obs))
	}
	if !CheckZeroMean(recs, rp) {
		t.Error("CheckZeroMean = false, want true")
	}
	for _, r := range recs {
		if math.Abs(r.AnomalyC-(r.TempC-r.ClimTempC)) > 1e-12 {
			t.Fatalf("%d-%02d: anomaly %f != temp - clim", r.Year, r.Month, r.AnomalyC)
		}
	}
}

func TestCheckZeroMean_DetectsShift(t *testing.T) {
	obs := monthlySeries("DE", 1991, 2020, seasonal, nil)
	rp := models.ReferencePeriod{Country: "DE", RefStart: 1991, RefEnd: 2020}
	clim, err := ComputeClimatology(obs, rp)
	if err != nil {
		t.Fatalf("ComputeClimatology: %v", err)
	}
	// A climatology offset by more than the tolerance must trip the check.
	for i := range clim {
		clim[i].ClimTempC += 0.2
	}
	recs := ComputeAnomalies(obs, clim)
	if CheckZeroMean(recs, rp) {
		t.Error("CheckZeroMean = true for shifted climatology, want false")
	}
}
