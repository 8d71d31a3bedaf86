package influx

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

const (
	MeasurementReading = "sensor_reading"
	MeasurementAlert   = "alert"
	MeasurementBio     = "bio_signal"
)

// ReadingToPoint maps one accepted reading to a sensor_reading point.
func ReadingToPoint(r messages.SensorReading) *write.Point {
	tags := map[string]string{"sensor_type": string(r.SensorType)}
	if r.DeviceID != "" {
		tags["device_id"] = r.DeviceID
	}
	fields := map[string]interface{}{
		"value": r.Value,
	}
	if r.ID != "" {
		fields["reading_id"] = r.ID
	}
	if r.Unit != "" {
		fields["unit"] = r.Unit
	}
	return influxdb2.NewPoint(MeasurementReading, tags, fields, r.Timestamp)
}

// AlertToPoint stores the alert with a monotone count so every point has a numeric field.
func AlertToPoint(a messages.Alert) *write.Point {
	return influxdb2.NewPoint(MeasurementAlert,
		map[string]string{"alert_type": string(a.Type)},
		map[string]interface{}{
			"alert_id": a.ID,
			"message":  a.Message,
			"count":    int64(1),
		},
		a.Timestamp)
}

// BioToPoint keeps only the derived features; raw waveforms are not persisted.
func BioToPoint(b messages.BioSignalReading) *write.Point {
	tags := map[string]string{"quality": string(b.Quality)}
	if b.DeviceID != "" {
		tags["device_id"] = b.DeviceID
	}
	return influxdb2.NewPoint(MeasurementBio, tags,
		map[string]interface{}{
			"mean_amplitude":     b.Features.MeanAmplitude,
			"rms_amplitude":      b.Features.RMSAmplitude,
			"dominant_frequency": b.Features.DominantFrequency,
			"sample_rate":        b.SampleRate,
		},
		b.Timestamp)
}
