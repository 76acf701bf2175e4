package forecast

import (
	"math"
	"testing"

	"github.com/maxhuegel/EmissionWiz/internal/features"
	"github.com/maxhuegel/EmissionWiz/internal/models"
	"github.com/maxhuegel/EmissionWiz/internal/train"
)

func TestDampWeight(t *testing.T) {
	prev := 1.1
	for h := 1; h <= 60; h++ {
		w := DampWeight(0.97, h)
		if w >= prev {
			t.Fatalf("DampWeight not decreasing at h=%d: %f >= %f", h, w, prev)
		}
		prev = w
	}
	if w := DampWeight(1, 60); w != 1 {
		t.Errorf("DampWeight(1, 60) = %f, want 1", w)
	}
	// Out-of-range damping falls back to no damping.
	if w := DampWeight(0, 5); w != 1 {
		t.Errorf("DampWeight(0, 5) = %f, want 1", w)
	}
	if w := DampWeight(1.5, 5); w != 1 {
		t.Errorf("DampWeight(1.5, 5) = %f, want 1", w)
	}
}

func TestBlendWeight(t *testing.T) {
	tests := []struct {
		h    int
		want float64
	}{
		{1, 0}, {12, 0}, {24, 0.4}, {36, 0.8}, {60, 0.8},
	}
	for _, tt := range tests {
		if got := BlendWeight(tt.h, 12, 36, 0.8); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("BlendWeight(%d) = %f, want %f", tt.h, got, tt.want)
		}
	}
	if got := BlendWeight(50, 0, 0, 0); got != 0 {
		t.Errorf("disabled blend = %f, want 0", got)
	}
}

func TestClipBound(t *testing.T) {
	hist := []float64{-1, 1, -1, 1, -1, 1}

	// Fixed bound takes precedence over the sigma-derived one.
	if got := ClipBound(hist, Policy{ClipAnomC: 2.5, ClipSigma: 4}); got != 2.5 {
		t.Errorf("fixed bound = %f, want 2.5", got)
	}

	got := ClipBound(hist, Policy{ClipSigma: 4})
	want := 4 * 1.0954451150103324 // sample stddev of the alternating series
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("sigma bound = %f, want %f", got, want)
	}

	if got := ClipBound([]float64{1}, Policy{ClipSigma: 4}); got != 0 {
		t.Errorf("bound on tiny history = %f, want 0 (disabled)", got)
	}
}

// constantModel predicts a fixed anomaly regardless of input.
func constantModel(v float64, featCfg features.Config) *train.RidgeModel {
	names := features.Names(featCfg)
	p := len(names)
	scaler := train.Standardizer{Mean: make([]float64, p), Std: make([]float64, p)}
	for j := range scaler.Std {
		scaler.Std[j] = 1
	}
	return &train.RidgeModel{
		Features:  names,
		Scaler:    scaler,
		Coef:      make([]float64, p),
		Intercept: v,
	}
}

func testAnomalies(n int) []models.AnomalyRecord {
	start := models.TimeIndex(2000, 1)
	recs := make([]models.AnomalyRecord, n)
	for i := 0; i < n; i++ {
		y, m := models.FromTimeIndex(start + i)
		recs[i] = models.AnomalyRecord{Country: "DE", Year: y, Month: m, AnomalyC: 0.3 * math.Sin(float64(i))}
	}
	return recs
}

func climNormals() map[int]float64 {
	clim := make(map[int]float64, 12)
	for m := 1; m <= 12; m++ {
		clim[m] = 10 + 8*math.Sin(2*math.Pi*float64(m)/12)
	}
	return clim
}

func TestRun_DampsClipsAndBlends(t *testing.T) {
	featCfg := features.Config{}
	anoms := testAnomalies(240)
	cutoff := models.TimeIndex(2019, 12)
	clim := climNormals()

	p := Policy{Damping: 0.97, ClipAnomC: 0.4, BlendStart: 12, BlendEnd: 36, BlendMax: 0.8}
	model := constantModel(1.0, featCfg)

	steps := Run(model, featCfg, clim, NewState(anoms, cutoff), 60, p)
	if len(steps) != 60 {
		t.Fatalf("len(steps) = %d, want 60", len(steps))
	}

	for i, s := range steps {
		if s.Horizon != i+1 {
			t.Fatalf("step %d: horizon %d", i, s.Horizon)
		}
		if s.Key != cutoff+s.Horizon {
			t.Errorf("step %d: key %d, want %d", i, s.Key, cutoff+s.Horizon)
		}
		if s.RawAnomC != 1.0 {
			t.Errorf("step %d: raw %f, want 1.0 from the constant model", i, s.RawAnomC)
		}
		wantPred := math.Min(DampWeight(p.Damping, s.Horizon), p.ClipAnomC)
		if math.Abs(s.PredAnomC-wantPred) > 1e-12 {
			t.Errorf("step %d: pred %f, want %f (damped then clipped)", i, s.PredAnomC, wantPred)
		}
		w := BlendWeight(s.Horizon, p.BlendStart, p.BlendEnd, p.BlendMax)
		wantBlend := (1 - w) * s.PredAnomC
		if math.Abs(s.BlendedAnomC-wantBlend) > 1e-12 {
			t.Errorf("step %d: blended %f, want %f", i, s.BlendedAnomC, wantBlend)
		}
		if math.Abs(s.PredTempC-(clim[s.Month]+s.BlendedAnomC)) > 1e-12 {
			t.Errorf("step %d: temp %f != clim + blended anomaly", i, s.PredTempC)
		}
		if math.Abs(s.PredAnomC) > p.ClipAnomC+1e-12 {
			t.Errorf("step %d: pred %f outside clip bound", i, s.PredAnomC)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	featCfg := features.Config{}
	anoms := testAnomalies(240)
	cutoff := models.TimeIndex(2019, 12)
	clim := climNormals()
	p := DefaultPolicy()

	rows := features.TrainingRows(features.Build(anoms, featCfg), featCfg)
	model, err := train.Fit(rows, featCfg, train.DefaultConfig())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	a := Run(model, featCfg, clim, NewState(anoms, cutoff), 60, p)
	b := Run(model, featCfg, clim, NewState(anoms, cutoff), 60, p)
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d differs between identical runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRun_InsufficientHistory(t *testing.T) {
	featCfg := features.Config{}
	anoms := testAnomalies(6)
	cutoff := models.TimeIndex(2000, 6)

	steps := Run(constantModel(0.5, featCfg), featCfg, climNormals(), NewState(anoms, cutoff), 12, DefaultPolicy())
	if len(steps) != 0 {
		t.Errorf("got %d steps with 6 months of history, want 0", len(steps))
	}
}
