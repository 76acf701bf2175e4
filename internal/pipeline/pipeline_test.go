package pipeline

import (
	"database/sql"
	"math"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/maxhuegel/EmissionWiz/internal/models"
	"github.com/maxhuegel/EmissionWiz/internal/store"
	"github.com/maxhuegel/EmissionWiz/internal/train"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

// syntheticCountry builds a 45-year monthly series with seasonality, a slow
// warming trend and deterministic pseudo-noise.
func syntheticCountry(country string, baseTemp, amp float64) []models.Observation {
	var obs []models.Observation
	for y := 1980; y <= 2024; y++ {
		for m := 1; m <= 12; m++ {
			k := models.TimeIndex(y, m)
			temp := baseTemp +
				amp*math.Sin(2*math.Pi*float64(m)/12) +
				0.02*float64(y-1980) +
				0.4*math.Sin(float64(k)*0.711)
			obs = append(obs, models.Observation{Country: country, Year: y, Month: m, TempC: temp})
		}
	}
	return obs
}

func seedCountries(t *testing.T, st *store.Store) {
	t.Helper()
	for _, c := range []struct {
		name string
		base float64
		amp  float64
	}{
		{"Germany", 9, 9},
		{"Brazil", 25, 2},
		{"Canada", -4, 16},
	} {
		if err := st.UpsertObservations(syntheticCountry(c.name, c.base, c.amp)); err != nil {
			t.Fatalf("seed %s: %v", c.name, err)
		}
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full pipeline run")
	}
	st := setupStore(t)
	seedCountries(t, st)

	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.HorizonMonths = 24

	summary, err := New(st, cfg).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 3 || summary.Failed != 0 {
		t.Fatalf("processed %d, failed %d, want 3 and 0", summary.Processed, summary.Failed)
	}

	for _, country := range []string{"Germany", "Brazil", "Canada"} {
		clim, err := st.GetClimatology(country)
		if err != nil {
			t.Fatalf("GetClimatology(%s): %v", country, err)
		}
		if len(clim) != 12 {
			t.Errorf("%s: %d climatology rows, want 12", country, len(clim))
		}

		rp, err := st.GetReferencePeriod(country)
		if err != nil || rp == nil {
			t.Fatalf("GetReferencePeriod(%s): %v, %v", country, rp, err)
		}
		if rp.RefStart != 1981 || rp.RefEnd != 2010 {
			t.Errorf("%s: reference window %d-%d, want the default 1981-2010", country, rp.RefStart, rp.RefEnd)
		}

		folds, err := st.GetFolds(country)
		if err != nil {
			t.Fatalf("GetFolds(%s): %v", country, err)
		}
		if len(folds) == 0 {
			t.Errorf("%s: no folds", country)
		}

		cutoff, ok, err := st.LatestCutoff(country)
		if err != nil || !ok {
			t.Fatalf("LatestCutoff(%s): %v, %v", country, ok, err)
		}
		if want := models.TimeIndex(2024, 12); cutoff != want {
			t.Errorf("%s: latest cutoff %d, want %d (last observed month)", country, cutoff, want)
		}
		final, err := st.GetForecastsAtCutoff(country, cutoff)
		if err != nil {
			t.Fatalf("GetForecastsAtCutoff(%s): %v", country, err)
		}
		if len(final) != cfg.HorizonMonths {
			t.Errorf("%s: %d final forecast steps, want %d", country, len(final), cfg.HorizonMonths)
		}
		for _, f := range final {
			if f.TruthTempC.Valid {
				t.Errorf("%s: future month %d-%02d has truth", country, f.Year, f.Month)
			}
		}
	}

	years, err := st.GetCountryYears()
	if err != nil {
		t.Fatalf("GetCountryYears: %v", err)
	}
	// 45 observed years plus 2 full forecast years per country.
	if len(years) != 3*47 {
		t.Errorf("len(country_year) = %d, want %d", len(years), 3*47)
	}
	forecastYears := 0
	for _, a := range years {
		if a.Source == "forecast" {
			forecastYears++
		}
		if math.Abs(a.Anom-(a.TempC-a.Base)) > 1e-9 {
			t.Fatalf("%s %d: anom %f != temp - base", a.Country, a.Year, a.Anom)
		}
	}
	if forecastYears != 6 {
		t.Errorf("forecast years = %d, want 6", forecastYears)
	}

	if len(summary.ByCountry) == 0 || len(summary.Global) == 0 {
		t.Error("summary has no backtest metrics")
	}
	// The seeded series are seasonal with a trend, so the ridge model should
	// beat raw climatology over the first forecast year in most countries.
	yearRMSE := func(country, who string) float64 {
		var n int
		var sqSum float64
		for _, m := range summary.ByCountry {
			if m.Country != country || m.Who != who {
				continue
			}
			switch m.Bucket {
			case "h01_03", "h04_06", "h07_12":
				n += m.N
				sqSum += m.RMSE * m.RMSE * float64(m.N)
			}
		}
		if n == 0 {
			t.Fatalf("no first-year metrics for %s/%s", country, who)
		}
		return math.Sqrt(sqSum / float64(n))
	}
	wins := 0
	for _, country := range []string{"Germany", "Brazil", "Canada"} {
		if yearRMSE(country, train.WhoModel) < yearRMSE(country, train.WhoClimatology) {
			wins++
		}
	}
	if wins < 2 {
		t.Errorf("model beats climatology in %d of 3 countries, want at least 2", wins)
	}
	if len(summary.Decisions) != len(cfg.Buckets) {
		t.Errorf("decisions = %d, want one per bucket", len(summary.Decisions))
	}
	if len(summary.Checks) != 3 {
		t.Errorf("checks = %d, want 3", len(summary.Checks))
	}
	for _, c := range summary.Checks {
		if !c.Climatology12OK {
			t.Errorf("%s: climatology check failed", c.Country)
		}
		if !c.MeanAnomInRefOK.Valid || !c.MeanAnomInRefOK.Bool {
			t.Errorf("%s: zero-mean check failed", c.Country)
		}
		if c.Failure != "" {
			t.Errorf("%s: unexpected failure %q", c.Country, c.Failure)
		}
	}

	report := RenderReport(summary)
	for _, want := range []string{"# Pipeline Report", "model_ridge", "climatology", "lag12", "## Decision"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestPipelineIsolatesBadCountry(t *testing.T) {
	st := setupStore(t)
	seedCountries(t, st)

	// Tiny series: no reference window, no climatology for one month.
	var tiny []models.Observation
	for y := 2010; y <= 2012; y++ {
		for m := 1; m <= 11; m++ {
			tiny = append(tiny, models.Observation{Country: "Atlantis", Year: y, Month: m, TempC: 15})
		}
	}
	if err := st.UpsertObservations(tiny); err != nil {
		t.Fatalf("seed Atlantis: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.HorizonMonths = 12

	summary, err := New(st, cfg).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 3 {
		t.Errorf("processed = %d, want 3 healthy countries", summary.Processed)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}

	var atlantis *models.CountryCheck
	for i := range summary.Checks {
		if summary.Checks[i].Country == "Atlantis" {
			atlantis = &summary.Checks[i]
		}
	}
	if atlantis == nil {
		t.Fatal("no consistency row for the failed country")
	}
	if atlantis.Failure == "" {
		t.Error("failed country has empty failure reason")
	}
}

func TestRunEmptyStore(t *testing.T) {
	st := setupStore(t)
	_, err := New(st, DefaultConfig()).Run()
	if err == nil {
		t.Fatal("Run on empty store succeeded")
	}
	if !IsDataError(err) {
		t.Errorf("err = %v, not classified as a data error", err)
	}
}
