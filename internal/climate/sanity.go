package climate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/maxhuegel/EmissionWiz/internal/models"
)

// AutocorrLag12 is the lag-12 autocorrelation of the anomaly series, the
// persistence signal the lag-12 baseline exploits. Returns NaN when the
// series is too short.
func AutocorrLag12(recs []models.AnomalyRecord) float64 {
	const lag = 12
	if len(recs) < lag+2 {
		return math.NaN()
	}
	x := make([]float64, 0, len(recs)-lag)
	y := make([]float64, 0, len(recs)-lag)
	for i := lag; i < len(recs); i++ {
		x = append(x, recs[i-lag].AnomalyC)
		y = append(y, recs[i].AnomalyC)
	}
	return stat.Correlation(x, y, nil)
}

// TrendPerDecade fits a linear trend over the monthly anomaly index and
// returns the slope in degrees C per decade.
func TrendPerDecade(recs []models.AnomalyRecord) float64 {
	if len(recs) < 3 {
		return math.NaN()
	}
	t := make([]float64, len(recs))
	y := make([]float64, len(recs))
	for i, r := range recs {
		t[i] = float64(i)
		y[i] = r.AnomalyC
	}
	_, slope := stat.LinearRegression(t, y, nil, false)
	return slope * 120 // months per decade
}
