// Package train fits the per-country ridge models and scores them against
// the climatology and lag-12 persistence baselines.
package train

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errNotPositiveDefinite = errors.New("ridge normal equations not positive definite")

// Standardizer holds per-feature training statistics. It must only ever be
// fitted on training rows; applying it to validation rows is fine, fitting
// on them is leakage.
type Standardizer struct {
	Mean []float64
	Std  []float64
}

// FitStandardizer computes column means and sample standard deviations.
// Constant columns get Std 1 so they standardize to zero instead of NaN.
func FitStandardizer(x [][]float64) Standardizer {
	n := len(x)
	p := len(x[0])
	s := Standardizer{Mean: make([]float64, p), Std: make([]float64, p)}

	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += x[i][j]
		}
		s.Mean[j] = sum / float64(n)
	}
	for j := 0; j < p; j++ {
		ss := 0.0
		for i := 0; i < n; i++ {
			d := x[i][j] - s.Mean[j]
			ss += d * d
		}
		if n > 1 {
			s.Std[j] = math.Sqrt(ss / float64(n-1))
		}
		if s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			s.Std[j] = 1
		}
	}
	return s
}

func (s Standardizer) Transform(x []float64) []float64 {
	z := make([]float64, len(x))
	for j := range x {
		z[j] = (x[j] - s.Mean[j]) / s.Std[j]
	}
	return z
}

// RidgeModel is a fitted regularized linear model plus the standardization
// transform that belongs to it.
type RidgeModel struct {
	Features  []string
	Scaler    Standardizer
	Coef      []float64
	Intercept float64
	Alpha     float64
}

// FitRidge solves the ridge normal equations (ZᵀZ + αI)β = Zᵀ(y-ȳ) on
// standardized features, with an unpenalized intercept of mean(y).
func FitRidge(x [][]float64, y []float64, alpha float64, featureNames []string) (*RidgeModel, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("ridge: %d rows vs %d targets", n, len(y))
	}
	p := len(x[0])

	scaler := FitStandardizer(x)

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= float64(n)

	z := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		z.SetRow(i, scaler.Transform(x[i]))
	}
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.Dense
	gram.Mul(z.T(), z)
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := gram.At(i, j)
			if i == j {
				v += alpha
			}
			sym.SetSym(i, j, v)
		}
	}

	var rhs mat.VecDense
	rhs.MulVec(z.T(), yc)

	// Cholesky is the right tool here: the regularized Gram matrix is
	// positive definite for any alpha > 0. Boost alpha and retry on
	// numerical failure before giving up.
	var beta mat.VecDense
	solved := false
	boost := alpha
	for attempt := 0; attempt < 3; attempt++ {
		var chol mat.Cholesky
		if chol.Factorize(sym) {
			if err := chol.SolveVecTo(&beta, &rhs); err == nil {
				solved = true
			}
			break
		}
		boost *= 10
		if boost == 0 {
			boost = 1e-6
		}
		for i := 0; i < p; i++ {
			sym.SetSym(i, i, gram.At(i, i)+boost)
		}
	}
	if !solved {
		return nil, errNotPositiveDefinite
	}

	coef := make([]float64, p)
	for j := 0; j < p; j++ {
		coef[j] = beta.AtVec(j)
	}
	return &RidgeModel{
		Features:  featureNames,
		Scaler:    scaler,
		Coef:      coef,
		Intercept: yMean,
		Alpha:     alpha,
	}, nil
}

// Predict evaluates the model on one raw (unstandardized) feature vector.
func (m *RidgeModel) Predict(x []float64) float64 {
	z := m.Scaler.Transform(x)
	v := m.Intercept
	for j, c := range m.Coef {
		v += c * z[j]
	}
	return v
}
