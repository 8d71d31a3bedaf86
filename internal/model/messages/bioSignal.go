package messages

import (
	"encoding/json"
	"time"
)

// SignalQuality buckets a waveform by signal-to-noise ratio.
type SignalQuality string

const (
	QualityExcellent SignalQuality = "Excellent"
	QualityGood      SignalQuality = "Good"
	QualityFair      SignalQuality = "Fair"
	QualityPoor      SignalQuality = "Poor"
)

// BioSignalFeatures are recomputed for every incoming chunk.
type BioSignalFeatures struct {
	MeanAmplitude     float64       `json:"meanAmplitude"`
	RMSAmplitude      float64       `json:"rmsAmplitude"`
	DominantFrequency float64       `json:"dominantFrequency"`
	SignalQuality     SignalQuality `json:"signalQuality"`
}

// BioSignalData is the bio_signal payload: raw waveform chunks of two electrodes.
type BioSignalData struct {
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"deviceId,omitempty"`
	SampleRate float64   `json:"sampleRate"`
	Channel1   []float64 `json:"channel1"`
	Channel2   []float64 `json:"channel2,omitempty"`
}

func (d *BioSignalData) UnmarshalJSON(b []byte) error {
	type alias BioSignalData
	aux := &struct {
		Timestamp any `json:"timestamp"`
		*alias
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(b, aux); err != nil {
		return err
	}
	d.Timestamp = parseTimestamp(aux.Timestamp)
	return nil
}

// BioSignalReading is a processed chunk kept in the bio-signal buffer.
type BioSignalReading struct {
	BioSignalData
	Filtered []float64         `json:"filtered,omitempty"`
	Features BioSignalFeatures `json:"features"`
	Quality  SignalQuality     `json:"quality"`
}
