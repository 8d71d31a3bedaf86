package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the "type" discriminator of a /signals message.
type MessageType string

const (
	TypeSensorData        MessageType = "sensor_data"
	TypeBioSignal         MessageType = "bio_signal"
	TypeDeviceStatus      MessageType = "device_status"
	TypeAlert             MessageType = "alert"
	TypeCalibrationResult MessageType = "calibration_result"
	TypeHeartbeat         MessageType = "heartbeat"

	// outbound only
	TypeCalibrate MessageType = "calibrate"
)

var errMissingType = errors.New("envelope: missing type")

// Envelope is the JSON object exchanged on the signal stream: {type, data}.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: %w", err)
	}
	env.Type = MessageType(strings.TrimSpace(string(env.Type)))
	if env.Type == "" {
		return Envelope{}, errMissingType
	}
	return env, nil
}

// Encode builds the wire form of a message.
func Encode(t MessageType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("envelope %s: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: payload})
}

// Into unmarshals the envelope payload into out.
func (e Envelope) Into(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s: empty data", e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("envelope %s: %w", e.Type, err)
	}
	return nil
}
