// Package forecast runs the recursive multi-step projection: each step's
// prediction becomes the next step's lag input. Compounding error is held
// down by horizon damping, per-country clipping and climatology blending.
package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/maxhuegel/EmissionWiz/internal/features"
	"github.com/maxhuegel/EmissionWiz/internal/models"
	"github.com/maxhuegel/EmissionWiz/internal/train"
)

// historyLen caps the rolling anomaly history carried through the
// recursion; 120 months covers every lag and rolling window with room.
const historyLen = 120

// Policy bundles the stabilization knobs for the recursion.
type Policy struct {
	// Damping is the geometric base d of the per-step damping weight
	// d^h. 1 disables damping; values below 1 shrink the model increment
	// toward zero as the horizon grows.
	Damping float64
	// ClipAnomC is a fixed absolute anomaly bound. When 0 the bound is
	// derived from the country's own history as ClipSigma standard
	// deviations of the anomaly series.
	ClipAnomC float64
	ClipSigma float64
	// Blend ramps the climatology weight linearly from 0 at BlendStart
	// to BlendMax at BlendEnd. Zero values disable blending.
	BlendStart int
	BlendEnd   int
	BlendMax   float64
}

func DefaultPolicy() Policy {
	return Policy{
		Damping:    0.97,
		ClipSigma:  4,
		BlendStart: 12,
		BlendEnd:   36,
		BlendMax:   0.8,
	}
}

// DampWeight is the model-increment weight at horizon step h, non-increasing
// in h for any damping base in (0, 1].
func DampWeight(damping float64, h int) float64 {
	d := damping
	if d <= 0 || d > 1 {
		d = 1
	}
	return math.Pow(d, float64(h))
}

// BlendWeight is the climatology weight at horizon step h: 0 up to start,
// linear ramp to max at end, then flat.
func BlendWeight(h, start, end int, max float64) float64 {
	if end <= start || max <= 0 {
		return 0
	}
	if h <= start {
		return 0
	}
	if h >= end {
		return max
	}
	return max * float64(h-start) / float64(end-start)
}

// ClipBound derives the plausible anomaly range for a country from its
// historical spread. A configured fixed bound takes precedence.
func ClipBound(hist []float64, p Policy) float64 {
	if p.ClipAnomC > 0 {
		return p.ClipAnomC
	}
	if p.ClipSigma <= 0 || len(hist) < 2 {
		return 0
	}
	return p.ClipSigma * stat.StdDev(hist, nil)
}

func clamp(v, bound float64) float64 {
	if bound <= 0 {
		return v
	}
	return math.Max(-bound, math.Min(bound, v))
}

// State is the recursion state: the anomaly history as of the current step.
// Predictions append to it; nothing ever reads past the end.
type State struct {
	cutoff int
	hist   []float64
}

// NewState seeds the recursion from a country's observed anomalies at or
// before the forecast origin.
func NewState(recs []models.AnomalyRecord, cutoff int) State {
	st := State{cutoff: cutoff}
	for _, r := range recs {
		if models.TimeIndex(r.Year, r.Month) <= cutoff {
			st.hist = append(st.hist, r.AnomalyC)
		}
	}
	if len(st.hist) > historyLen {
		st.hist = st.hist[len(st.hist)-historyLen:]
	}
	return st
}

// History returns a copy of the current anomaly history.
func (s *State) History() []float64 {
	return append([]float64(nil), s.hist...)
}

// featureVector assembles the model input for the target month from the
// current state. ok is false when the state lacks the required history.
func (s *State) featureVector(month int, cfg features.Config) ([]float64, bool) {
	n := len(s.hist)
	if n < 12 {
		return nil, false
	}
	monSin, monCos := features.MonthEncoding(month)
	last3 := s.hist[n-3:]
	m3 := stat.Mean(last3, nil)
	var ss float64
	for _, v := range last3 {
		ss += (v - m3) * (v - m3)
	}
	v := []float64{monSin, monCos, s.hist[n-1], s.hist[n-12], m3, math.Sqrt(ss / 3)}
	if cfg.EnableLag24 {
		if n < 24 {
			return nil, false
		}
		v = append(v, s.hist[n-24])
	}
	if cfg.EnableRollMean12 {
		v = append(v, stat.Mean(s.hist[n-12:], nil))
	}
	return v, true
}

// push feeds a prediction back as the newest anomaly, shifting every lag and
// rolling window by one month.
func (s *State) push(anom float64) {
	s.hist = append(s.hist, anom)
	if len(s.hist) > historyLen {
		s.hist = s.hist[1:]
	}
}

// Step is one horizon step of the recursion.
type Step struct {
	Key          int // monthly time index of the target
	Year         int
	Month        int
	Horizon      int
	RawAnomC     float64 // undamped model output
	PredAnomC    float64 // damped and clipped; this is what feeds back
	BlendedAnomC float64
	PredTempC    float64
}

// Run projects H steps ahead from the state's cutoff. climByMonth maps
// calendar month to the climate-normal temperature. The transition at each
// step is pure: (state, model) -> (prediction, next state); repeated runs
// over the same inputs produce identical output.
func Run(model *train.RidgeModel, featCfg features.Config, climByMonth map[int]float64, st State, horizon int, p Policy) []Step {
	bound := ClipBound(st.hist, p)

	steps := make([]Step, 0, horizon)
	for h := 1; h <= horizon; h++ {
		key := st.cutoff + h
		year, month := models.FromTimeIndex(key)

		x, ok := st.featureVector(month, featCfg)
		if !ok {
			break
		}
		raw := model.Predict(x)
		pred := clamp(DampWeight(p.Damping, h)*raw, bound)

		w := BlendWeight(h, p.BlendStart, p.BlendEnd, p.BlendMax)
		blended := (1 - w) * pred // climatology's anomaly is 0 by construction

		steps = append(steps, Step{
			Key:          key,
			Year:         year,
			Month:        month,
			Horizon:      h,
			RawAnomC:     raw,
			PredAnomC:    pred,
			BlendedAnomC: blended,
			PredTempC:    climByMonth[month] + blended,
		})
		st.push(pred)
	}
	return steps
}
