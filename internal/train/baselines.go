package train

// Forecaster identities used in metric tables.
const (
	WhoModel       = "model_ridge"
	WhoClimatology = "climatology"
	WhoLag12       = "lag12"
)

// ClimatologyAnomaly is the climatology-only baseline: by construction the
// expected anomaly is zero, so the predicted temperature is the monthly
// climate normal itself.
func ClimatologyAnomaly() float64 { return 0 }

// Lag12Anomaly is the seasonal persistence baseline: the last observed
// anomaly for the target's calendar month at or before the cutoff. Walking
// back in 12-month strides keeps the baseline honest for horizons beyond a
// year, where k-12 itself would already lie in the future.
func Lag12Anomaly(anomAt map[int]float64, targetKey, cutoff int) (float64, bool) {
	for k := targetKey - 12; ; k -= 12 {
		if k > cutoff {
			continue
		}
		if v, ok := anomAt[k]; ok {
			return v, true
		}
		if k < cutoff-600 {
			return 0, false
		}
	}
}
