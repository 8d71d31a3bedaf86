// Package metrics holds the prometheus collectors of the monitor pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydro"

// connection states exported as a one-hot gauge
var connectionStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "CLOSING", "ERROR"}

type Metrics struct {
	messagesReceived *prometheus.CounterVec
	readingsAccepted *prometheus.CounterVec
	samplesRejected  prometheus.Counter
	duplicates       prometheus.Counter
	outliers         *prometheus.CounterVec
	alerts           *prometheus.CounterVec
	handlerErrors    prometheus.Counter
	bioQuality       *prometheus.CounterVec
	bufferSize       *prometheus.GaugeVec
	connectionState  *prometheus.GaugeVec
}

// New registers the collectors. A nil registerer returns nil, and every
// method is a no-op on a nil *Metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Messages received on the signal stream by type",
		}, []string{"type"}),
		readingsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "readings_accepted_total",
			Help:      "Readings stored per channel",
		}, []string{"channel"}),
		samplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "samples_rejected_total",
			Help:      "Samples dropped by validation",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "samples_duplicate_total",
			Help:      "Samples dropped because their id was already seen",
		}),
		outliers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outliers_total",
			Help:      "Outlier readings detected per channel",
		}, []string{"channel"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "alerts_total",
			Help:      "Alerts recorded by type",
		}, []string{"type"}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "handler_errors_total",
			Help:      "Message handlers that failed or panicked",
		}),
		bioQuality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "biosignal",
			Name:      "chunks_total",
			Help:      "Processed bio-signal chunks by quality",
		}, []string{"quality"}),
		bufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "buffer_size",
			Help:      "Readings currently buffered per channel",
		}, []string{"channel"}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),
	}
	reg.MustRegister(
		m.messagesReceived,
		m.readingsAccepted,
		m.samplesRejected,
		m.duplicates,
		m.outliers,
		m.alerts,
		m.handlerErrors,
		m.bioQuality,
		m.bufferSize,
		m.connectionState,
	)
	return m
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ReadingAccepted(channel string, buffered int) {
	if m == nil {
		return
	}
	m.readingsAccepted.WithLabelValues(channel).Inc()
	m.bufferSize.WithLabelValues(channel).Set(float64(buffered))
}

func (m *Metrics) SampleRejected() {
	if m == nil {
		return
	}
	m.samplesRejected.Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) Outlier(channel string) {
	if m == nil {
		return
	}
	m.outliers.WithLabelValues(channel).Inc()
}

func (m *Metrics) Alert(alertType string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType).Inc()
}

func (m *Metrics) HandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Inc()
}

func (m *Metrics) BioSignal(quality string) {
	if m == nil {
		return
	}
	m.bioQuality.WithLabelValues(quality).Inc()
}

func (m *Metrics) BufferCleared() {
	if m == nil {
		return
	}
	m.bufferSize.Reset()
}

func (m *Metrics) ConnectionState(state string) {
	if m == nil {
		return
	}
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}
