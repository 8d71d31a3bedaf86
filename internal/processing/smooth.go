package processing

import "github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"

// Smooth applies a moving average of width windowSize. The window starts
// half a window before i and is clipped at both ends of the series, so the
// edges average fewer points. A series shorter than the window, or a window
// of 1 or less, is returned unchanged.
func Smooth(series []messages.SensorReading, windowSize int) []messages.SensorReading {
	out := make([]messages.SensorReading, len(series))
	n := len(series)
	if n < windowSize || windowSize <= 1 {
		copy(out, series)
		return out
	}
	vals := make([]float64, n)
	for i, r := range series {
		vals[i] = r.Value
	}
	sm := movingAverage(vals, windowSize)
	for i, r := range series {
		out[i] = r.WithValue(sm[i])
	}
	return out
}

func movingAverage(vals []float64, w int) []float64 {
	n := len(vals)
	out := make([]float64, n)
	for i := range vals {
		start := max(0, i-w/2)
		end := min(n, start+w)
		out[i] = mean(vals[start:end])
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
