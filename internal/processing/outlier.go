package processing

import (
	"math"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

const minOutlierPoints = 3

// flatTolerance is the relative spread below which a series counts as
// constant; float rounding of the mean leaves a residue around 1e-17.
const flatTolerance = 1e-9

// DetectOutliers returns the readings farther than threshold population
// standard deviations from the series mean, in their original order.
func DetectOutliers(series []messages.SensorReading, threshold float64) []messages.SensorReading {
	out := []messages.SensorReading{}
	if len(series) < minOutlierPoints {
		return out
	}
	vals := make([]float64, len(series))
	for i, r := range series {
		vals[i] = r.Value
	}
	mu, sd := meanStd(vals)
	if sd <= flatTolerance*math.Max(1, math.Abs(mu)) {
		return out
	}
	for _, r := range series {
		if math.Abs(r.Value-mu) > threshold*sd {
			out = append(out, r)
		}
	}
	return out
}

// meanStd uses the population variance.
func meanStd(vals []float64) (float64, float64) {
	mu := mean(vals)
	var acc float64
	for _, v := range vals {
		acc += (v - mu) * (v - mu)
	}
	return mu, math.Sqrt(acc / float64(len(vals)))
}
