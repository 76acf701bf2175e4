package features

import (
	"errors"
	"fmt"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// ErrLeakage marks a split that would let training see validation-period
// data. This is a programming-level invariant violation and aborts the run,
// unlike data-quality problems which only degrade it.
var ErrLeakage = errors.New("temporal leakage")

// FoldConfig controls rolling-origin fold generation.
type FoldConfig struct {
	MinTrainRows int // complete rows required before the first cutoff
	StepMonths   int // months between consecutive cutoffs
	Horizon      int // validation window length in months
}

// MakeFolds produces expanding-window folds for one country's feature rows.
// Each fold trains on every complete row at or before the cutoff and
// validates on the following Horizon months. Folds are emitted in cutoff
// order; a country without enough history gets none.
func MakeFolds(rows []models.FeatureRow, featCfg Config, cfg FoldConfig) []models.Fold {
	complete := TrainingRows(rows, featCfg)
	if len(complete) < cfg.MinTrainRows {
		return nil
	}

	trainStart := models.TimeIndex(complete[0].Year, complete[0].Month)
	lastKey := models.TimeIndex(complete[len(complete)-1].Year, complete[len(complete)-1].Month)
	firstCutoff := models.TimeIndex(complete[cfg.MinTrainRows-1].Year, complete[cfg.MinTrainRows-1].Month)

	step := cfg.StepMonths
	if step < 1 {
		step = 1
	}

	var folds []models.Fold
	id := 1
	for cutoff := firstCutoff; cutoff < lastKey; cutoff += step {
		valEnd := cutoff + cfg.Horizon
		if valEnd > lastKey {
			valEnd = lastKey
		}
		folds = append(folds, models.Fold{
			FoldID:     id,
			Country:    complete[0].Country,
			Cutoff:     cutoff,
			TrainStart: trainStart,
			ValEnd:     valEnd,
		})
		id++
	}
	return folds
}

// VerifyFold asserts the non-leaking ordering of a fold: all training time
// strictly precedes all validation time.
func VerifyFold(f models.Fold) error {
	if f.TrainStart > f.Cutoff {
		return fmt.Errorf("%w: fold %d for %s: train start %d after cutoff %d",
			ErrLeakage, f.FoldID, f.Country, f.TrainStart, f.Cutoff)
	}
	if f.ValEnd <= f.Cutoff {
		return fmt.Errorf("%w: fold %d for %s: validation end %d not after cutoff %d",
			ErrLeakage, f.FoldID, f.Country, f.ValEnd, f.Cutoff)
	}
	return nil
}

// SplitByCutoff partitions complete rows into train (index <= cutoff) and
// validation (cutoff < index <= valEnd) sets.
func SplitByCutoff(rows []models.FeatureRow, featCfg Config, cutoff, valEnd int) (train, val []models.FeatureRow) {
	for _, r := range TrainingRows(rows, featCfg) {
		k := models.TimeIndex(r.Year, r.Month)
		switch {
		case k <= cutoff:
			train = append(train, r)
		case k <= valEnd:
			val = append(val, r)
		}
	}
	return train, val
}
