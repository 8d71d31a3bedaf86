package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/processing"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/dedup"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/metrics"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/ringbuffer"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

type Options struct {
	ReadingCapacity  int
	BioCapacity      int
	AlertCapacity    int
	SmoothingWindow  int
	OutlierThreshold float64
	DedupTTL         time.Duration
	Now              func() time.Time
}

func DefaultOptions() Options {
	return Options{
		ReadingCapacity:  1000,
		BioCapacity:      100,
		AlertCapacity:    50,
		SmoothingWindow:  5,
		OutlierThreshold: 2,
		DedupTTL:         10 * time.Minute,
		Now:              time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ReadingCapacity <= 0 {
		o.ReadingCapacity = def.ReadingCapacity
	}
	if o.BioCapacity <= 0 {
		o.BioCapacity = def.BioCapacity
	}
	if o.AlertCapacity <= 0 {
		o.AlertCapacity = def.AlertCapacity
	}
	if o.SmoothingWindow <= 0 {
		o.SmoothingWindow = def.SmoothingWindow
	}
	if o.OutlierThreshold <= 0 {
		o.OutlierThreshold = def.OutlierThreshold
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = def.DedupTTL
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// ReadingStore persists what the pipeline accepts.
type ReadingStore interface {
	WriteReading(r messages.SensorReading)
	WriteAlert(a messages.Alert)
	WriteBioSignal(b messages.BioSignalReading)
}

// Sinks are optional; nil fields are skipped.
type Sinks struct {
	Store     ReadingStore
	Publisher rabbitmq.IPublisher
	Metrics   *metrics.Metrics
}

// Pipeline routes stream messages and owns every buffer fed by them.
// HandleMessage is called from a single goroutine; queries may run concurrently.
type Pipeline struct {
	opts  Options
	log   *slog.Logger
	sinks Sinks

	mu            sync.RWMutex
	readings      map[entities.SensorType]*ringbuffer.Buffer[messages.SensorReading]
	smoothed      map[entities.SensorType][]messages.SensorReading
	latest        *messages.PlantSample
	bio           *ringbuffer.Buffer[messages.BioSignalReading]
	alerts        *ringbuffer.Buffer[messages.Alert]
	hardware      map[string]messages.HardwareStatus
	calibrations  map[string]messages.CalibrationResult
	lastHeartbeat time.Time

	samples *dedup.Deduper
	flagged *dedup.Deduper
}

func NewPipeline(opts Options, sinks Sinks, logger *slog.Logger) *Pipeline {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		opts:         opts,
		log:          logger.With("component", "pipeline"),
		sinks:        sinks,
		readings:     make(map[entities.SensorType]*ringbuffer.Buffer[messages.SensorReading], len(entities.Channels)),
		smoothed:     make(map[entities.SensorType][]messages.SensorReading, len(entities.Channels)),
		bio:          ringbuffer.New[messages.BioSignalReading](opts.BioCapacity),
		alerts:       ringbuffer.New[messages.Alert](opts.AlertCapacity),
		hardware:     make(map[string]messages.HardwareStatus),
		calibrations: make(map[string]messages.CalibrationResult),
		samples:      dedup.New(opts.DedupTTL, opts.ReadingCapacity*len(entities.Channels)),
		flagged:      dedup.New(opts.DedupTTL, opts.ReadingCapacity*len(entities.Channels)),
	}
	for _, ch := range entities.Channels {
		p.readings[ch] = ringbuffer.New[messages.SensorReading](opts.ReadingCapacity)
	}
	return p
}

// HandleMessage decodes a {type,data} frame and routes it. Unknown types are
// logged and ignored; malformed payloads are returned as errors.
func (p *Pipeline) HandleMessage(raw []byte) error {
	env, err := messages.Decode(raw)
	if err != nil {
		return err
	}
	p.sinks.Metrics.MessageReceived(string(env.Type))

	switch env.Type {
	case messages.TypeSensorData:
		return p.handleSensorData(env)
	case messages.TypeBioSignal:
		return p.handleBioSignal(env)
	case messages.TypeDeviceStatus:
		return p.handleDeviceStatus(env)
	case messages.TypeAlert:
		return p.handleAlert(env)
	case messages.TypeCalibrationResult:
		return p.handleCalibration(env)
	case messages.TypeHeartbeat:
		p.handleHeartbeat(env)
		return nil
	default:
		p.log.Info("unknown message type", "type", env.Type)
		return nil
	}
}

// HandleError turns connection failures into alerts. Handler failures are
// only logged and counted.
func (p *Pipeline) HandleError(err error) {
	var herr *wsconn.HandlerError
	switch {
	case err == nil:
		return
	case errors.As(err, &herr):
		p.sinks.Metrics.HandlerError()
		p.log.Warn("message handler failed", "error", err)
	case errors.Is(err, wsconn.ErrReconnectExhausted):
		p.raise(p.newAlert(messages.AlertCritical, "Hardware connection error: "+err.Error(), nil))
	default:
		p.raise(p.newAlert(messages.AlertError, "Hardware connection error: "+err.Error(), nil))
	}
}

func (p *Pipeline) handleSensorData(env messages.Envelope) error {
	var s messages.PlantSample
	if err := env.Into(&s); err != nil {
		return err
	}
	s.Timestamp = messages.OrNow(s.Timestamp, p.opts.Now())
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	// rejected ids stay free for a corrected resend
	if res := processing.Validate(s); !res.IsValid {
		p.sinks.Metrics.SampleRejected()
		p.log.Debug("sample rejected", "error", res.Err(s.ID))
		return nil
	}
	if !p.samples.ShouldProcess(s.ID) {
		p.sinks.Metrics.Duplicate()
		p.log.Debug("duplicate sample dropped", "id", s.ID)
		return nil
	}

	readings := s.Readings()
	var raised []messages.Alert
	buffered := make(map[entities.SensorType]int, len(readings))

	p.mu.Lock()
	p.latest = &s
	for _, r := range readings {
		buf := p.readings[r.SensorType]
		buf.Push(r)
		buffered[r.SensorType] = buf.Len()

		sm := processing.Smooth(buf.Snapshot(), p.opts.SmoothingWindow)
		p.smoothed[r.SensorType] = sm
		for _, o := range processing.DetectOutliers(sm, p.opts.OutlierThreshold) {
			if !p.flagged.ShouldProcess(o.ID) {
				continue
			}
			raised = append(raised, p.newAlert(messages.AlertWarning,
				"Outlier detected in sensor data at "+o.Timestamp.Format(time.RFC3339), o))
		}
	}
	p.mu.Unlock()

	for _, r := range readings {
		p.sinks.Metrics.ReadingAccepted(string(r.SensorType), buffered[r.SensorType])
		if p.sinks.Store != nil {
			p.sinks.Store.WriteReading(r)
		}
		p.publish(rabbitmq.Topic(rabbitmq.TopicReadings, string(r.SensorType)), r)
	}
	for _, a := range raised {
		if o, ok := a.Data.(messages.SensorReading); ok {
			p.sinks.Metrics.Outlier(string(o.SensorType))
		}
		p.raise(a)
	}
	return nil
}

func (p *Pipeline) handleBioSignal(env messages.Envelope) error {
	var d messages.BioSignalData
	if err := env.Into(&d); err != nil {
		return err
	}
	if d.SampleRate <= 0 {
		return fmt.Errorf("bio_signal %s: missing sample rate", d.ID)
	}
	d.Timestamp = messages.OrNow(d.Timestamp, p.opts.Now())
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	samples := d.Channel1
	if len(samples) == 0 {
		samples = d.Channel2
	}
	res := processing.ProcessBioSignal(samples, d.SampleRate)
	reading := messages.BioSignalReading{
		BioSignalData: d,
		Filtered:      res.FilteredSignal,
		Features:      res.Features,
		Quality:       res.Features.SignalQuality,
	}
	p.bio.Push(reading)

	p.sinks.Metrics.BioSignal(string(reading.Quality))
	if p.sinks.Store != nil {
		p.sinks.Store.WriteBioSignal(reading)
	}
	return nil
}

func (p *Pipeline) handleDeviceStatus(env messages.Envelope) error {
	var st messages.HardwareStatus
	if err := env.Into(&st); err != nil {
		return err
	}
	if st.DeviceID == "" {
		return errors.New("device_status: missing deviceId")
	}
	st.LastUpdated = p.opts.Now().UTC()

	p.mu.Lock()
	p.hardware[st.DeviceID] = st
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) handleAlert(env messages.Envelope) error {
	var a messages.Alert
	if err := env.Into(&a); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Timestamp = messages.OrNow(a.Timestamp, p.opts.Now())
	p.raise(a)
	return nil
}

func (p *Pipeline) handleCalibration(env messages.Envelope) error {
	var c messages.CalibrationResult
	if err := env.Into(&c); err != nil {
		return err
	}
	if c.SensorID == "" {
		return errors.New("calibration_result: missing sensorId")
	}
	c.Timestamp = messages.OrNow(c.Timestamp, p.opts.Now())

	p.mu.Lock()
	p.calibrations[c.Key()] = c
	p.mu.Unlock()

	if c.Success {
		p.raise(p.newAlert(messages.AlertInfo, "Calibration completed for sensor "+c.SensorID, c))
	} else {
		msg := "Calibration failed for sensor " + c.SensorID
		if c.Message != "" {
			msg += ": " + c.Message
		}
		p.raise(p.newAlert(messages.AlertWarning, msg, c))
	}
	return nil
}

func (p *Pipeline) handleHeartbeat(env messages.Envelope) {
	now := p.opts.Now().UTC()
	var hb messages.Heartbeat
	if len(env.Data) > 0 {
		_ = env.Into(&hb)
	}
	p.mu.Lock()
	p.lastHeartbeat = now
	if hb.DeviceID != "" {
		if st, ok := p.hardware[hb.DeviceID]; ok {
			st.LastSeen = now.Format(time.RFC3339)
			p.hardware[hb.DeviceID] = st
		}
	}
	p.mu.Unlock()
}

func (p *Pipeline) newAlert(t messages.AlertType, msg string, data any) messages.Alert {
	return messages.Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Message:   msg,
		Timestamp: p.opts.Now().UTC(),
		Data:      data,
	}
}

// raise records the alert and forwards it to the sinks.
func (p *Pipeline) raise(a messages.Alert) {
	p.alerts.Push(a)
	p.sinks.Metrics.Alert(string(a.Type))
	if p.sinks.Store != nil {
		p.sinks.Store.WriteAlert(a)
	}
	p.publish(rabbitmq.TopicAlerts, a)

	lvl := slog.LevelInfo
	if a.Type == messages.AlertError || a.Type == messages.AlertCritical {
		lvl = slog.LevelError
	} else if a.Type == messages.AlertWarning {
		lvl = slog.LevelWarn
	}
	p.log.Log(context.Background(), lvl, "alert", "id", a.ID, "type", a.Type, "message", a.Message)
}

func (p *Pipeline) publish(topic string, v any) {
	if p.sinks.Publisher == nil {
		return
	}
	if err := p.sinks.Publisher.PublishJSON(topic, v); err != nil {
		p.log.Warn("publish failed", "topic", topic, "error", err)
	}
}

// Readings returns the buffered readings of a channel, oldest first.
func (p *Pipeline) Readings(ch entities.SensorType) []messages.SensorReading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	buf, ok := p.readings[ch]
	if !ok {
		return nil
	}
	return buf.Snapshot()
}

// Smoothed returns the last smoothed series of a channel.
func (p *Pipeline) Smoothed(ch entities.SensorType) []messages.SensorReading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]messages.SensorReading(nil), p.smoothed[ch]...)
}

func (p *Pipeline) LatestSample() (messages.PlantSample, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return messages.PlantSample{}, false
	}
	return *p.latest, true
}

// BioSignals returns the processed chunks, oldest first.
func (p *Pipeline) BioSignals() []messages.BioSignalReading { return p.bio.Snapshot() }

// Alerts returns the alert log, newest first.
func (p *Pipeline) Alerts() []messages.Alert { return p.alerts.Newest() }

// ActiveAlerts are the error and critical alerts, newest first.
func (p *Pipeline) ActiveAlerts() []messages.Alert {
	var out []messages.Alert
	for _, a := range p.alerts.Newest() {
		if a.Type.Active() {
			out = append(out, a)
		}
	}
	return out
}

func (p *Pipeline) HardwareStatus() map[string]messages.HardwareStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]messages.HardwareStatus, len(p.hardware))
	for k, v := range p.hardware {
		out[k] = v
	}
	return out
}

func (p *Pipeline) Calibrations() map[string]messages.CalibrationResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]messages.CalibrationResult, len(p.calibrations))
	for k, v := range p.calibrations {
		out[k] = v
	}
	return out
}

func (p *Pipeline) LastHeartbeat() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHeartbeat
}

func (p *Pipeline) ClearAlerts() { p.alerts.Reset() }

// ClearData drops buffered readings and bio-signals. Alerts, hardware status
// and calibrations are kept.
func (p *Pipeline) ClearData() {
	p.mu.Lock()
	for _, buf := range p.readings {
		buf.Reset()
	}
	clear(p.smoothed)
	p.latest = nil
	p.mu.Unlock()
	p.bio.Reset()
	p.samples.Reset()
	p.flagged.Reset()
	p.sinks.Metrics.BufferCleared()
}
