package processing

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

func series(vals ...float64) []messages.SensorReading {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]messages.SensorReading, len(vals))
	for i, v := range vals {
		out[i] = messages.SensorReading{
			ID:         string(rune('a' + i)),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			SensorType: entities.SensorPH,
			Value:      v,
		}
	}
	return out
}

func values(rs []messages.SensorReading) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r.Value
	}
	return out
}

func validSample() messages.PlantSample {
	return messages.PlantSample{
		ID:           "s1",
		Temperature:  messages.Num(25),
		PH:           messages.Num(6.2),
		TDS:          messages.Num(500),
		Humidity:     messages.Num(50),
		DissolvedOxy: messages.Num(5),
	}
}

func TestValidate(t *testing.T) {
	res := Validate(validSample())
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err("s1"))

	s := validSample()
	s.PH = messages.Num(15)
	res = Validate(s)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Invalid pH value")
	assert.Len(t, res.Errors, 1)

	var verr *ValidationError
	require.True(t, errors.As(res.Err("s1"), &verr))
	assert.Equal(t, "s1", verr.SampleID)
}

func TestValidateBoundsAreInclusive(t *testing.T) {
	s := validSample()
	s.Temperature = messages.Num(-50)
	s.PH = messages.Num(14)
	s.TDS = messages.Num(0)
	s.Humidity = messages.Num(100)
	s.DissolvedOxy = messages.Num(20)
	assert.True(t, Validate(s).IsValid)

	s.Temperature = messages.Num(100.01)
	s.DissolvedOxy = messages.Num(-0.1)
	res := Validate(s)
	assert.ElementsMatch(t, []string{"Invalid temperature value", "Invalid dissolved oxygen value"}, res.Errors)
}

func TestValidateRejectsNonNumeric(t *testing.T) {
	s := validSample()
	s.TDS = messages.Metric{}
	s.Humidity = messages.Num(math.NaN())
	res := Validate(s)
	assert.False(t, res.IsValid)
	assert.ElementsMatch(t, []string{"Invalid TDS value", "Invalid humidity value"}, res.Errors)
}

func TestInBounds(t *testing.T) {
	assert.True(t, InBounds(entities.SensorPH, 7))
	assert.False(t, InBounds(entities.SensorPH, 14.5))
	assert.True(t, InBounds(entities.SensorBioelectrical, -300))
}

func TestSmooth(t *testing.T) {
	in := series(1, 2, 3, 4, 5)
	out := Smooth(in, 3)
	require.Len(t, out, len(in))
	assert.InDeltaSlice(t, []float64{2, 2, 3, 4, 4.5}, values(out), 1e-9)
	assert.Equal(t, in[4].ID, out[4].ID)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, values(in), "input must not change")
}

func TestSmoothWindowOneIsIdentity(t *testing.T) {
	in := series(3, 9, 1, 7)
	assert.Equal(t, in, Smooth(in, 1))
}

func TestSmoothShortSeriesUnchanged(t *testing.T) {
	in := series(3, 9)
	assert.Equal(t, in, Smooth(in, 5))
	assert.Empty(t, Smooth(nil, 5))
}

func TestDetectOutliers(t *testing.T) {
	// quattro punti: lo z-score massimo è sqrt(3)
	got := DetectOutliers(series(6.0, 6.2, 6.1, 9.5), 1.5)
	require.Len(t, got, 1)
	assert.Equal(t, 9.5, got[0].Value)
	assert.Equal(t, "d", got[0].ID)

	got = DetectOutliers(series(6.0, 6.2, 6.1, 6.0, 6.1, 6.2, 6.0, 9.5), 2)
	require.Len(t, got, 1)
	assert.Equal(t, 9.5, got[0].Value)
}

func TestDetectOutliersEdgeCases(t *testing.T) {
	assert.Empty(t, DetectOutliers(series(1, 100), 0.1))
	assert.Empty(t, DetectOutliers(series(5, 5, 5, 5, 5), 0))
	// 0.1 and 6.1 have no exact binary form, the mean is off by one ulp
	assert.Empty(t, DetectOutliers(series(0.1, 0.1, 0.1), 0.5))
	assert.Empty(t, DetectOutliers(series(0.1, 0.1, 0.1), 0))
	assert.Empty(t, DetectOutliers(Smooth(series(6.1, 6.1, 6.1, 6.1, 6.1, 6.1, 6.1, 6.1), 5), 0))
	assert.Empty(t, DetectOutliers(nil, 2))
}

func TestDetectOutliersKeepsOrder(t *testing.T) {
	got := DetectOutliers(series(-50, 0, 0, 0, 0, 0, 0, 50), 1.5)
	assert.Equal(t, []float64{-50, 50}, values(got))
}

func TestBandLimit(t *testing.T) {
	in := []float64{1, 5, 2, 8}
	assert.Equal(t, in, BandLimit(in, 100), "half-width 0 passes through")

	// 400 Hz: half-width 2, window [i-2, i+2)
	out := BandLimit([]float64{1, 2, 3, 4, 5}, 400)
	assert.InDeltaSlice(t, []float64{1.5, 2, 2.5, 3.5, 4}, out, 1e-9)
}

func TestPowerSpectrumDominantBin(t *testing.T) {
	const n, rate = 100, 100.0
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 10 * float64(i) / n)
	}
	spectrum := PowerSpectrum(x, rate)
	require.Len(t, spectrum, 50)
	assert.InDelta(t, 10.0, spectrum[10].Frequency, 1e-9)
	assert.InDelta(t, 25.0, spectrum[10].Power, 1e-6)

	res := ProcessBioSignal(x, rate)
	assert.InDelta(t, 10.0, res.Features.DominantFrequency, 1e-9)
	assert.InDelta(t, math.Sqrt(0.5), res.Features.RMSAmplitude, 1e-6)
	assert.Equal(t, messages.QualityPoor, res.Features.SignalQuality)
}

func TestPowerSpectrumOddLength(t *testing.T) {
	assert.Len(t, PowerSpectrum([]float64{1, 2, 3, 4, 5}, 10), 3)
	assert.Empty(t, PowerSpectrum(nil, 10))
}

func TestProcessBioSignalConstant(t *testing.T) {
	res := ProcessBioSignal([]float64{3, 3, 3, 3}, 100)
	assert.Equal(t, 3.0, res.Features.MeanAmplitude)
	assert.Equal(t, 3.0, res.Features.RMSAmplitude)
	assert.Equal(t, 0.0, res.Features.DominantFrequency)
	assert.Equal(t, messages.QualityExcellent, res.Features.SignalQuality)
}

func TestProcessBioSignalEmpty(t *testing.T) {
	res := ProcessBioSignal(nil, 1000)
	assert.Empty(t, res.FilteredSignal)
	assert.Empty(t, res.Spectrum)
	assert.Equal(t, messages.BioSignalFeatures{SignalQuality: messages.QualityPoor}, res.Features)
}

func TestQuality(t *testing.T) {
	assert.Equal(t, messages.QualityExcellent, Quality(11, 1))
	assert.Equal(t, messages.QualityGood, Quality(6, 1))
	assert.Equal(t, messages.QualityFair, Quality(3, 1))
	assert.Equal(t, messages.QualityPoor, Quality(2, 1))
	assert.Equal(t, messages.QualityPoor, Quality(0, 0))
}
