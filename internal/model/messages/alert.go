package messages

import (
	"encoding/json"
	"time"
)

type AlertType string

const (
	AlertInfo     AlertType = "info"
	AlertWarning  AlertType = "warning"
	AlertError    AlertType = "error"
	AlertCritical AlertType = "critical"
)

// Active reports whether the alert needs operator attention.
func (t AlertType) Active() bool { return t == AlertError || t == AlertCritical }

// Alert is raised by the pipeline or received from the backend. Never mutated.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func (a *Alert) UnmarshalJSON(b []byte) error {
	type alias Alert
	aux := &struct {
		Timestamp any `json:"timestamp"`
		*alias
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(b, aux); err != nil {
		return err
	}
	a.Timestamp = parseTimestamp(aux.Timestamp)
	if a.Type == "" {
		a.Type = AlertInfo
	}
	return nil
}
