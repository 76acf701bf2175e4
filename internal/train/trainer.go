package train

import (
	"fmt"
	"math"

	"github.com/maxhuegel/EmissionWiz/internal/features"
	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// Config controls model fitting and hyperparameter search.
type Config struct {
	Alphas       []float64 // regularization grid
	MinTrainRows int       // rows required before a fold is trainable
}

func DefaultConfig() Config {
	return Config{
		Alphas:       []float64{0.1, 1.0, 10.0},
		MinTrainRows: 120,
	}
}

// innerSplits yields expanding-window (trainEnd, valStart, valEnd) index
// triples over n chronologically ordered rows: split i trains on the first
// i+1 blocks and validates on block i+2.
func innerSplits(n, nSplits int) [][3]int {
	block := n / (nSplits + 1)
	if block == 0 {
		return nil
	}
	splits := make([][3]int, 0, nSplits)
	for i := 1; i <= nSplits; i++ {
		trainEnd := block * i
		valEnd := block * (i + 1)
		if i == nSplits {
			valEnd = n
		}
		splits = append(splits, [3]int{trainEnd, trainEnd, valEnd})
	}
	return splits
}

// Fit trains a ridge model on one fold's training rows, selecting the
// regularization strength by expanding time-ordered inner splits; the
// standardizer of every candidate is fitted only on that split's training
// slice. Small training sets skip the search and use alpha 1.
func Fit(trainRows []models.FeatureRow, featCfg features.Config, cfg Config) (*RidgeModel, error) {
	n := len(trainRows)
	if n < cfg.MinTrainRows {
		return nil, fmt.Errorf("train: %d rows, need %d", n, cfg.MinTrainRows)
	}

	names := features.Names(featCfg)
	x := make([][]float64, n)
	y := make([]float64, n)
	for i, r := range trainRows {
		x[i] = features.Vector(r, featCfg)
		y[i] = r.Target.Float64
	}

	if n < 60 {
		return FitRidge(x, y, 1.0, names)
	}

	nSplits := 2
	if n >= 100 {
		nSplits = 3
	}
	splits := innerSplits(n, nSplits)

	bestAlpha := cfg.Alphas[0]
	bestRMSE := math.Inf(1)
	for _, alpha := range cfg.Alphas {
		sum := 0.0
		folds := 0
		for _, sp := range splits {
			m, err := FitRidge(x[:sp[0]], y[:sp[0]], alpha, names)
			if err != nil {
				continue
			}
			se := 0.0
			cnt := 0
			for i := sp[1]; i < sp[2]; i++ {
				d := m.Predict(x[i]) - y[i]
				se += d * d
				cnt++
			}
			if cnt == 0 {
				continue
			}
			sum += math.Sqrt(se / float64(cnt))
			folds++
		}
		if folds == 0 {
			continue
		}
		if avg := sum / float64(folds); avg < bestRMSE {
			bestRMSE = avg
			bestAlpha = alpha
		}
	}

	return FitRidge(x, y, bestAlpha, names)
}
