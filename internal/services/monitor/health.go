package monitor

import (
	"encoding/json"
	"net/http"
	"time"
)

// Probe is anything reporting a live connection (socket, MQTT client).
type Probe interface {
	IsConnected() bool
}

// ErrorAger reports how long ago the store last failed a write.
type ErrorAger interface {
	LastErrorAge() time.Duration
}

type healthHandler struct {
	stream Probe
	mqtt   Probe
	writer ErrorAger
}

// NewHealthHandler: mqtt and writer may be nil when the sink is not configured.
func NewHealthHandler(stream, mqtt Probe, w ErrorAger) http.Handler {
	return &healthHandler{stream: stream, mqtt: mqtt, writer: w}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string   `json:"status"`
		StreamConnected bool     `json:"stream_connected"`
		MQTTConnected   *bool    `json:"mqtt_connected,omitempty"`
		LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
	}
	st := status{StreamConnected: h.stream.IsConnected()}
	sinksOK := true
	if h.mqtt != nil {
		c := h.mqtt.IsConnected()
		st.MQTTConnected = &c
		sinksOK = sinksOK && c
	}
	if h.writer != nil {
		age := h.writer.LastErrorAge()
		s := age.Seconds()
		st.LastWriteErrorS = &s
		// errore di scrittura recente -> degradato
		sinksOK = sinksOK && age > 30*time.Second
	}

	switch {
	case st.StreamConnected && sinksOK:
		st.Status = "ok"
	case st.StreamConnected || sinksOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

// Handler /readyz: 200 solo con lo stream connesso.
type readyHandler struct {
	stream Probe
}

func NewReadyHandler(stream Probe) http.Handler {
	return &readyHandler{stream: stream}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.stream.IsConnected()
	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	type resp struct {
		Ready bool `json:"ready"`
	}
	_ = json.NewEncoder(w).Encode(resp{Ready: ready})
}
