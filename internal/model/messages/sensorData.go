package messages

import (
	"encoding/json"
	"math"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
)

// Metric is a numeric field that remembers whether the wire value was a number.
type Metric struct {
	Value float64
	Valid bool
}

// Num builds a valid Metric.
func Num(v float64) Metric { return Metric{Value: v, Valid: true} }

// IsNumber is false for missing, non-numeric, NaN or infinite values.
func (m Metric) IsNumber() bool {
	return m.Valid && !math.IsNaN(m.Value) && !math.IsInf(m.Value, 0)
}

func (m *Metric) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	// stringhe, bool e null non sono numeri: li marchiamo invalidi senza errore
	f, ok := v.(float64)
	m.Value, m.Valid = f, ok
	return nil
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.IsNumber() {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// PlantSample is the sensor_data payload: one sample of every bounded channel.
type PlantSample struct {
	ID           string    `json:"id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	DeviceID     string    `json:"deviceId,omitempty"`
	PlantType    string    `json:"plantType,omitempty"`
	Location     string    `json:"location,omitempty"`
	Temperature  Metric    `json:"temperature"`
	PH           Metric    `json:"ph"`
	TDS          Metric    `json:"tds"`
	Humidity     Metric    `json:"humidity"`
	DissolvedOxy Metric    `json:"dissolvedOxy"`
	Quality      string    `json:"quality,omitempty"`
}

func (s *PlantSample) UnmarshalJSON(b []byte) error {
	type alias PlantSample
	aux := &struct {
		Timestamp any `json:"timestamp"`
		*alias
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(b, aux); err != nil {
		return err
	}
	s.Timestamp = parseTimestamp(aux.Timestamp)
	return nil
}

// Metric returns the value carried for ch.
func (s PlantSample) Metric(ch entities.SensorType) (Metric, bool) {
	switch ch {
	case entities.SensorTemperature:
		return s.Temperature, true
	case entities.SensorPH:
		return s.PH, true
	case entities.SensorTDS:
		return s.TDS, true
	case entities.SensorHumidity:
		return s.Humidity, true
	case entities.SensorDissolvedOxy:
		return s.DissolvedOxy, true
	default:
		return Metric{}, false
	}
}

// Readings explodes the sample into one SensorReading per channel.
// The sample must already carry its id and timestamp.
func (s PlantSample) Readings() []SensorReading {
	out := make([]SensorReading, 0, len(entities.Channels))
	for _, ch := range entities.Channels {
		m, _ := s.Metric(ch)
		if !m.IsNumber() {
			continue
		}
		out = append(out, SensorReading{
			ID:         s.ID + ":" + string(ch),
			Timestamp:  s.Timestamp,
			SensorType: ch,
			Value:      m.Value,
			Unit:       ch.Unit(),
			Quality:    s.Quality,
			DeviceID:   s.DeviceID,
		})
	}
	return out
}

// SensorReading is one timestamped measurement of a single channel.
type SensorReading struct {
	ID         string              `json:"id"`
	Timestamp  time.Time           `json:"timestamp"`
	SensorType entities.SensorType `json:"sensorType"`
	Value      float64             `json:"value"`
	Unit       string              `json:"unit,omitempty"`
	Quality    string              `json:"quality,omitempty"`
	DeviceID   string              `json:"deviceId,omitempty"`
}

// WithValue returns a copy carrying v; readings are never mutated in place.
func (r SensorReading) WithValue(v float64) SensorReading {
	r.Value = v
	return r
}
