package messages

import (
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
)

// HardwareStatus is the last device_status received for a device.
// A new message replaces the whole entry.
type HardwareStatus struct {
	DeviceID        string              `json:"deviceId"`
	DeviceType      entities.DeviceType `json:"deviceType,omitempty"`
	IsConnected     bool                `json:"isConnected"`
	LastSeen        string              `json:"lastSeen,omitempty"`
	BatteryLevel    *float64            `json:"batteryLevel,omitempty"`
	SignalStrength  *float64            `json:"signalStrength,omitempty"`
	FirmwareVersion string              `json:"firmwareVersion,omitempty"`
	Sensors         []any               `json:"sensors,omitempty"`
	LastUpdated     time.Time           `json:"lastUpdated"`
}

// CalibrationResult is the device answer to a calibrate command.
type CalibrationResult struct {
	DeviceID  string    `json:"deviceId"`
	SensorID  string    `json:"sensorId"`
	Success   bool      `json:"success"`
	Offset    float64   `json:"calibrationOffset,omitempty"`
	Scale     float64   `json:"calibrationScale,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Key identifies the calibrated sensor.
func (c CalibrationResult) Key() string { return c.DeviceID + "/" + c.SensorID }

// Heartbeat keeps the stream alive; the payload is optional.
type Heartbeat struct {
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CalibrateCommand is sent to the stream to start a calibration.
type CalibrateCommand struct {
	SensorID  string    `json:"sensorId"`
	Timestamp time.Time `json:"timestamp"`
}
