package train

import (
	"math"
	"testing"
)

func TestFitStandardizer(t *testing.T) {
	x := [][]float64{
		{1, 5, 7},
		{3, 5, 9},
		{5, 5, 11},
	}
	s := FitStandardizer(x)

	if got := s.Mean[0]; got != 3 {
		t.Errorf("Mean[0] = %f, want 3", got)
	}
	if got := s.Std[0]; math.Abs(got-2) > 1e-12 {
		t.Errorf("Std[0] = %f, want 2 (sample stddev)", got)
	}
	// Constant column standardizes to zero instead of NaN.
	if got := s.Std[1]; got != 1 {
		t.Errorf("Std[1] = %f, want 1 for constant column", got)
	}
	z := s.Transform([]float64{5, 5, 11})
	if math.Abs(z[0]-1) > 1e-12 || z[1] != 0 || math.Abs(z[2]-1) > 1e-12 {
		t.Errorf("Transform = %v, want [1 0 1]", z)
	}
}

func TestFitRidge_RecoversLinearSignal(t *testing.T) {
	// y = 2*x0 - 3*x1 + 5 on a deterministic grid; with tiny alpha the
	// fit must reproduce it almost exactly.
	var x [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		x0 := math.Sin(float64(i) * 0.7)
		x1 := math.Cos(float64(i) * 0.3)
		x = append(x, []float64{x0, x1})
		y = append(y, 2*x0-3*x1+5)
	}

	m, err := FitRidge(x, y, 1e-8, []string{"x0", "x1"})
	if err != nil {
		t.Fatalf("FitRidge: %v", err)
	}
	for i := range x {
		if d := math.Abs(m.Predict(x[i]) - y[i]); d > 1e-6 {
			t.Fatalf("row %d: |pred - truth| = %g", i, d)
		}
	}
	if m.Alpha != 1e-8 {
		t.Errorf("Alpha = %g, want 1e-8", m.Alpha)
	}
}

func TestFitRidge_ShrinksWithAlpha(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		v := math.Sin(float64(i) * 0.5)
		x = append(x, []float64{v})
		y = append(y, 4*v)
	}

	small, err := FitRidge(x, y, 0.001, []string{"v"})
	if err != nil {
		t.Fatalf("FitRidge small alpha: %v", err)
	}
	large, err := FitRidge(x, y, 1000, []string{"v"})
	if err != nil {
		t.Fatalf("FitRidge large alpha: %v", err)
	}
	if math.Abs(large.Coef[0]) >= math.Abs(small.Coef[0]) {
		t.Errorf("coef did not shrink: %f (alpha 1000) vs %f (alpha 0.001)",
			large.Coef[0], small.Coef[0])
	}
}

func TestFitRidge_Degenerate(t *testing.T) {
	if _, err := FitRidge(nil, nil, 1, nil); err == nil {
		t.Error("FitRidge(empty) = nil error")
	}

	// Perfectly collinear columns still solve thanks to regularization.
	var x [][]float64
	var y []float64
	for i := 0; i < 50; i++ {
		v := float64(i % 7)
		x = append(x, []float64{v, v})
		y = append(y, v)
	}
	m, err := FitRidge(x, y, 1.0, []string{"a", "b"})
	if err != nil {
		t.Fatalf("FitRidge collinear: %v", err)
	}
	// Symmetric problem, symmetric solution.
	if math.Abs(m.Coef[0]-m.Coef[1]) > 1e-9 {
		t.Errorf("coef = %v, want equal coefficients", m.Coef)
	}
}
