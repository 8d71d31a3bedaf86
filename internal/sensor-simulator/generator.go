package sensor_simulator

import (
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/processing"
)

// ====== Tunables ======
const (
	// driftFraction: passo massimo per tick come frazione dell'ampiezza del range ottimale.
	driftFraction = 0.05

	// reversion: quanto il valore viene richiamato verso il centro del range a ogni tick.
	reversion = 0.05

	// spikeSpan: ampiezza di uno spike in multipli del range ottimale.
	spikeSpan = 2.0

	BioSampleRate = 1000.0
	BioSamples    = 256
)

// DataGenerator keeps the drifting state of every channel around the
// optimal range of a plant profile.
type DataGenerator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	profile   entities.PlantProfile
	spikeRate float64
	values    map[entities.SensorType]float64
	seq       int
	phase     float64
}

func NewDataGenerator(profile entities.PlantProfile, spikeRate float64, seed int64) *DataGenerator {
	g := &DataGenerator{
		rnd:       rand.New(rand.NewSource(seed)),
		profile:   profile,
		spikeRate: math.Max(0, math.Min(1, spikeRate)),
		values:    make(map[entities.SensorType]float64, len(entities.Channels)),
	}
	for _, ch := range entities.Channels {
		r, _ := profile.Optimal(ch)
		g.values[ch] = (r.Min + r.Max) / 2
	}
	return g
}

// Next advances the random walk and returns a sample; with probability
// spikeRate one channel carries a spike that is not kept in the state.
func (g *DataGenerator) Next(deviceID string, now time.Time) messages.PlantSample {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	for _, ch := range entities.Channels {
		r, _ := g.profile.Optimal(ch)
		span := r.Max - r.Min
		mid := (r.Min + r.Max) / 2
		v := g.values[ch]
		v += (g.rnd.Float64()*2 - 1) * span * driftFraction
		v += (mid - v) * reversion
		g.values[ch] = clamp(v, r.Min-span, r.Max+span)
	}

	out := map[entities.SensorType]float64{}
	for ch, v := range g.values {
		out[ch] = round2(v)
	}
	if g.rnd.Float64() < g.spikeRate {
		ch := entities.Channels[g.rnd.Intn(len(entities.Channels))]
		out[ch] = g.spike(ch, out[ch])
	}

	return messages.PlantSample{
		ID:           deviceID + "-" + strconv.Itoa(g.seq),
		Timestamp:    now.UTC(),
		DeviceID:     deviceID,
		PlantType:    g.profile.Name,
		Temperature:  messages.Num(out[entities.SensorTemperature]),
		PH:           messages.Num(out[entities.SensorPH]),
		TDS:          messages.Num(out[entities.SensorTDS]),
		Humidity:     messages.Num(out[entities.SensorHumidity]),
		DissolvedOxy: messages.Num(out[entities.SensorDissolvedOxy]),
		Quality:      "good",
	}
}

// spike stays inside the physical bounds so the sample is still accepted.
func (g *DataGenerator) spike(ch entities.SensorType, v float64) float64 {
	r, _ := g.profile.Optimal(ch)
	delta := (r.Max - r.Min) * spikeSpan
	for _, cand := range []float64{v + delta, v - delta} {
		if processing.InBounds(ch, cand) {
			return round2(cand)
		}
	}
	return v
}

// BioSignal returns BioSamples points at BioSampleRate: a 10 Hz carrier on
// channel 1 and a 25 Hz one on channel 2, both offset and with noise.
func (g *DataGenerator) BioSignal(deviceID string, now time.Time) messages.BioSignalData {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch1 := make([]float64, BioSamples)
	ch2 := make([]float64, BioSamples)
	for i := range ch1 {
		t := g.phase + float64(i)/BioSampleRate
		ch1[i] = 1 + 0.5*math.Sin(2*math.Pi*10*t) + 0.05*g.rnd.NormFloat64()
		ch2[i] = 0.8 + 0.3*math.Sin(2*math.Pi*25*t) + 0.05*g.rnd.NormFloat64()
	}
	g.phase += BioSamples / BioSampleRate
	g.seq++
	return messages.BioSignalData{
		ID:         deviceID + "-bio-" + strconv.Itoa(g.seq),
		Timestamp:  now.UTC(),
		DeviceID:   deviceID,
		SampleRate: BioSampleRate,
		Channel1:   ch1,
		Channel2:   ch2,
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
