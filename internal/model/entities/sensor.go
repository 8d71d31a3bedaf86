package entities

// SensorType identifies a measured channel.
type SensorType string

const (
	SensorTemperature   SensorType = "temperature"
	SensorPH            SensorType = "ph"
	SensorTDS           SensorType = "tds"
	SensorHumidity      SensorType = "humidity"
	SensorDissolvedOxy  SensorType = "dissolvedOxy"
	SensorBioelectrical SensorType = "bioelectrical"
)

// Channels are the five bounded channels carried by a sensor_data sample.
var Channels = []SensorType{
	SensorTemperature,
	SensorPH,
	SensorTDS,
	SensorHumidity,
	SensorDissolvedOxy,
}

// Unit returns the display unit for the channel.
func (s SensorType) Unit() string {
	switch s {
	case SensorTemperature:
		return "°C"
	case SensorTDS:
		return "ppm"
	case SensorHumidity:
		return "%"
	case SensorDissolvedOxy:
		return "mg/L"
	case SensorBioelectrical:
		return "mV"
	default:
		return ""
	}
}

// IsChannel reports whether s is one of the five bounded channels.
func (s SensorType) IsChannel() bool {
	for _, c := range Channels {
		if c == s {
			return true
		}
	}
	return false
}

// DeviceType is the hardware platform reporting a device_status.
type DeviceType string

const (
	DeviceArduino      DeviceType = "arduino"
	DeviceRaspberryPi  DeviceType = "raspberry_pi"
	DeviceESP32        DeviceType = "esp32"
	DeviceSensorModule DeviceType = "sensor_module"
)
