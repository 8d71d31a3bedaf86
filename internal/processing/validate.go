package processing

import (
	"strings"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

type bound struct {
	min, max float64
	msg      string
}

// limiti fisici, estremi inclusi
var bounds = map[entities.SensorType]bound{
	entities.SensorTemperature:  {-50, 100, "Invalid temperature value"},
	entities.SensorPH:           {0, 14, "Invalid pH value"},
	entities.SensorTDS:          {0, 5000, "Invalid TDS value"},
	entities.SensorHumidity:     {0, 100, "Invalid humidity value"},
	entities.SensorDissolvedOxy: {0, 20, "Invalid dissolved oxygen value"},
}

// ValidationResult lists every failed bound of a sample.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidationError is the error form of a failed ValidationResult.
type ValidationError struct {
	SampleID string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return "invalid sample " + e.SampleID + ": " + strings.Join(e.Errors, ", ")
}

// Err returns nil for a valid result.
func (r ValidationResult) Err(sampleID string) error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{SampleID: sampleID, Errors: r.Errors}
}

// Validate checks every bounded channel of the sample. Missing or
// non-numeric values fail their channel.
func Validate(s messages.PlantSample) ValidationResult {
	res := ValidationResult{IsValid: true, Errors: []string{}}
	for _, ch := range entities.Channels {
		b := bounds[ch]
		m, _ := s.Metric(ch)
		if !m.IsNumber() || m.Value < b.min || m.Value > b.max {
			res.IsValid = false
			res.Errors = append(res.Errors, b.msg)
		}
	}
	return res
}

// InBounds reports whether a single channel value is physically plausible.
func InBounds(ch entities.SensorType, v float64) bool {
	b, ok := bounds[ch]
	if !ok {
		return true
	}
	return v >= b.min && v <= b.max
}
