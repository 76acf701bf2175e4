package train

import (
	"math"
	"sort"
)

// Bucket groups forecast horizons for reporting.
type Bucket struct {
	Name   string
	HStart int
	HEnd   int
}

func DefaultBuckets() []Bucket {
	return []Bucket{
		{Name: "h01_03", HStart: 1, HEnd: 3},
		{Name: "h04_06", HStart: 4, HEnd: 6},
		{Name: "h07_12", HStart: 7, HEnd: 12},
		{Name: "h13_24", HStart: 13, HEnd: 24},
		{Name: "h25_60", HStart: 25, HEnd: 60},
	}
}

func BucketFor(h int, buckets []Bucket) string {
	for _, b := range buckets {
		if h >= b.HStart && h <= b.HEnd {
			return b.Name
		}
	}
	return "h_na"
}

// BucketMetric is the error summary for one (country, forecaster, bucket).
// Country is empty in global rows, where MAE and RMSE are means of the
// per-country values so every country weighs equally.
type BucketMetric struct {
	Country string
	Who     string
	Bucket  string
	N       int
	MAE     float64
	RMSE    float64
}

type accum struct {
	n      int
	absSum float64
	sqSum  float64
}

type metricKey struct {
	country, who, bucket string
}

// Evaluator accumulates forecast errors by (country, forecaster, horizon
// bucket). Model and baselines must be fed the identical fold/horizon grid
// for the comparison to be fair.
type Evaluator struct {
	buckets []Bucket
	acc     map[metricKey]*accum
}

func NewEvaluator(buckets []Bucket) *Evaluator {
	return &Evaluator{buckets: buckets, acc: make(map[metricKey]*accum)}
}

func (e *Evaluator) Add(country, who string, h int, predC, truthC float64) {
	key := metricKey{country: country, who: who, bucket: BucketFor(h, e.buckets)}
	a := e.acc[key]
	if a == nil {
		a = &accum{}
		e.acc[key] = a
	}
	d := predC - truthC
	a.n++
	a.absSum += math.Abs(d)
	a.sqSum += d * d
}

// Merge folds another evaluator's accumulators in, used when per-country
// workers evaluate independently.
func (e *Evaluator) Merge(other *Evaluator) {
	for k, a := range other.acc {
		dst := e.acc[k]
		if dst == nil {
			dst = &accum{}
			e.acc[k] = dst
		}
		dst.n += a.n
		dst.absSum += a.absSum
		dst.sqSum += a.sqSum
	}
}

// ByCountry returns the per-country bucket metrics in deterministic order.
func (e *Evaluator) ByCountry() []BucketMetric {
	out := make([]BucketMetric, 0, len(e.acc))
	for k, a := range e.acc {
		out = append(out, BucketMetric{
			Country: k.country,
			Who:     k.who,
			Bucket:  k.bucket,
			N:       a.n,
			MAE:     a.absSum / float64(a.n),
			RMSE:    math.Sqrt(a.sqSum / float64(a.n)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Who < out[j].Who
	})
	return out
}

// Global averages the per-country metrics per (who, bucket).
func Global(byCountry []BucketMetric) []BucketMetric {
	type gkey struct{ who, bucket string }
	type gacc struct {
		countries int
		mae, rmse float64
	}
	agg := make(map[gkey]*gacc)
	for _, m := range byCountry {
		k := gkey{who: m.Who, bucket: m.Bucket}
		a := agg[k]
		if a == nil {
			a = &gacc{}
			agg[k] = a
		}
		a.countries++
		a.mae += m.MAE
		a.rmse += m.RMSE
	}
	out := make([]BucketMetric, 0, len(agg))
	for k, a := range agg {
		out = append(out, BucketMetric{
			Who:    k.who,
			Bucket: k.bucket,
			N:      a.countries,
			MAE:    a.mae / float64(a.countries),
			RMSE:   a.rmse / float64(a.countries),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Who < out[j].Who
	})
	return out
}

// Decision is the per-bucket viability verdict against the baselines.
// The criteria are reporting-only; they never gate the pipeline.
type Decision struct {
	Bucket            string
	Countries         int
	ShareBeatBoth     float64 // countries where the model beats both baselines
	GlobalImprovement float64 // relative RMSE improvement vs the best baseline
	ShareRegressed    float64 // countries >10% worse than the best baseline
	Viable            bool
}

// Decide scores the model per bucket: viable when >=70% of countries beat
// both baselines, global RMSE improves by >=10% against the best baseline,
// and at most 10% of countries regress by more than 10%.
func Decide(byCountry []BucketMetric, buckets []Bucket) []Decision {
	type ckey struct{ country, bucket string }
	model := make(map[ckey]float64)
	clim := make(map[ckey]float64)
	lag12 := make(map[ckey]float64)
	for _, m := range byCountry {
		k := ckey{country: m.Country, bucket: m.Bucket}
		switch m.Who {
		case WhoModel:
			model[k] = m.RMSE
		case WhoClimatology:
			clim[k] = m.RMSE
		case WhoLag12:
			lag12[k] = m.RMSE
		}
	}

	decisions := make([]Decision, 0, len(buckets))
	for _, b := range buckets {
		var countries, beatBoth, regressed int
		var modelSum, bestBaseSum float64
		for k, mRMSE := range model {
			if k.bucket != b.Name {
				continue
			}
			cRMSE, okC := clim[k]
			lRMSE, okL := lag12[k]
			if !okC || !okL {
				continue
			}
			countries++
			best := math.Min(cRMSE, lRMSE)
			modelSum += mRMSE
			bestBaseSum += best
			if mRMSE < cRMSE && mRMSE < lRMSE {
				beatBoth++
			}
			if best > 0 && mRMSE > best*1.10 {
				regressed++
			}
		}
		d := Decision{Bucket: b.Name, Countries: countries}
		if countries > 0 && bestBaseSum > 0 {
			d.ShareBeatBoth = float64(beatBoth) / float64(countries)
			d.GlobalImprovement = (bestBaseSum - modelSum) / bestBaseSum
			d.ShareRegressed = float64(regressed) / float64(countries)
			d.Viable = d.ShareBeatBoth >= 0.70 &&
				d.GlobalImprovement >= 0.10 &&
				d.ShareRegressed <= 0.10
		}
		decisions = append(decisions, d)
	}
	return decisions
}
