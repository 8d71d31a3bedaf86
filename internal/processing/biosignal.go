package processing

import (
	"math"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

const (
	// LowCutoffHz is the nominal high-pass edge. The band limit only
	// implements the low-pass side.
	LowCutoffHz  = 0.5
	HighCutoffHz = 100.0
)

// SpectrumBin is the power at one discrete frequency.
type SpectrumBin struct {
	Frequency float64 `json:"frequency"`
	Power     float64 `json:"power"`
}

type BioSignalResult struct {
	FilteredSignal []float64                  `json:"filteredSignal"`
	Spectrum       []SpectrumBin              `json:"spectrum"`
	Features       messages.BioSignalFeatures `json:"features"`
}

// ProcessBioSignal band-limits the raw samples, computes their power
// spectrum and derives the amplitude and quality features.
func ProcessBioSignal(samples []float64, sampleRate float64) BioSignalResult {
	filtered := BandLimit(samples, sampleRate)
	spectrum := PowerSpectrum(filtered, sampleRate)
	return BioSignalResult{
		FilteredSignal: filtered,
		Spectrum:       spectrum,
		Features:       features(filtered, spectrum),
	}
}

// BandLimit is a centered moving average of half-width
// floor(sampleRate / (2*HighCutoffHz)). Half-widths below 1 pass through.
func BandLimit(samples []float64, sampleRate float64) []float64 {
	out := make([]float64, len(samples))
	w := int(math.Floor(sampleRate / (HighCutoffHz * 2)))
	if w < 1 {
		copy(out, samples)
		return out
	}
	n := len(samples)
	for i := range samples {
		out[i] = mean(samples[max(0, i-w):min(n, i+w)])
	}
	return out
}

// PowerSpectrum is a direct O(n²) DFT over the first ceil(n/2) bins.
// Chunks are a few hundred samples, small enough not to need an FFT.
func PowerSpectrum(x []float64, sampleRate float64) []SpectrumBin {
	n := len(x)
	bins := (n + 1) / 2
	out := make([]SpectrumBin, 0, bins)
	for k := 0; k < bins; k++ {
		var re, im float64
		for i, v := range x {
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		out = append(out, SpectrumBin{
			Frequency: float64(k) * sampleRate / float64(n),
			Power:     (re*re + im*im) / float64(n),
		})
	}
	return out
}

func features(x []float64, spectrum []SpectrumBin) messages.BioSignalFeatures {
	f := messages.BioSignalFeatures{SignalQuality: messages.QualityPoor}
	if len(x) == 0 {
		return f
	}
	var absSum, sqSum float64
	for _, v := range x {
		absSum += math.Abs(v)
		sqSum += v * v
	}
	n := float64(len(x))
	f.MeanAmplitude = absSum / n
	f.RMSAmplitude = math.Sqrt(sqSum / n)

	best := -1.0
	for _, b := range spectrum {
		if b.Power > best {
			best = b.Power
			f.DominantFrequency = b.Frequency
		}
	}

	mu, sd := meanStd(x)
	f.SignalQuality = Quality(math.Abs(mu), sd)
	return f
}

// Quality classifies snr = |mean| / stddev.
func Quality(absMean, stddev float64) messages.SignalQuality {
	var snr float64
	switch {
	case stddev > 0:
		snr = absMean / stddev
	case absMean > 0:
		// segnale costante non nullo
		snr = math.Inf(1)
	}
	switch {
	case snr > 10:
		return messages.QualityExcellent
	case snr > 5:
		return messages.QualityGood
	case snr > 2:
		return messages.QualityFair
	default:
		return messages.QualityPoor
	}
}
