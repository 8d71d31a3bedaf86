// Package influx persists readings and alerts in InfluxDB and reads the
// reading history back with Flux.
package influx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

// Writer wraps the async WriteAPI and remembers the last write error for the health checks.
type Writer struct {
	api     api.WriteAPI
	log     *slog.Logger
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w api.WriteAPI, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	ww := &Writer{
		api:     w,
		log:     logger.With("component", "influx-writer"),
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				ww.log.Error("write failed", "error", err)
			}
		}
	}()
	return ww
}

func (w *Writer) WriteReading(r messages.SensorReading) {
	w.api.WritePoint(ReadingToPoint(r))
	w.mark(MeasurementReading)
}

func (w *Writer) WriteAlert(a messages.Alert) {
	w.api.WritePoint(AlertToPoint(a))
	w.mark(MeasurementAlert)
}

func (w *Writer) WriteBioSignal(b messages.BioSignalReading) {
	w.api.WritePoint(BioToPoint(b))
	w.mark(MeasurementBio)
}

func (w *Writer) Flush() { w.api.Flush() }

// LastErrorAge is the time since the last asynchronous write error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[measurement]
}

func (w *Writer) mark(measurement string) {
	w.mu.Lock()
	w.counts[measurement]++
	w.mu.Unlock()
}
