package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	readings []messages.SensorReading
	alerts   []messages.Alert
	bio      []messages.BioSignalReading
}

func (s *memStore) WriteReading(r messages.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
}

func (s *memStore) WriteAlert(a messages.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *memStore) WriteBioSignal(b messages.BioSignalReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bio = append(s.bio, b)
}

type memPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *memPublisher) PublishJSON(topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *memPublisher) Close() {}

func newTestPipeline(t *testing.T, mutate func(*Options)) (*Pipeline, *memStore, *memPublisher) {
	t.Helper()
	opts := DefaultOptions()
	opts.SmoothingWindow = 1
	opts.OutlierThreshold = 1.5
	opts.Now = func() time.Time { return t0 }
	if mutate != nil {
		mutate(&opts)
	}
	store, pub := &memStore{}, &memPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(opts, Sinks{Store: store, Publisher: pub}, logger), store, pub
}

func frame(t *testing.T, typ messages.MessageType, data any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": typ, "data": data})
	require.NoError(t, err)
	return b
}

func sample(id string, ph float64) map[string]any {
	return map[string]any{
		"id": id, "temperature": 22.0, "ph": ph, "tds": 800.0, "humidity": 60.0, "dissolvedOxy": 7.0,
	}
}

func TestSensorDataIsSplitPerChannel(t *testing.T) {
	p, store, pub := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))

	for _, ch := range entities.Channels {
		rs := p.Readings(ch)
		require.Len(t, rs, 1, ch)
		assert.Equal(t, "s1:"+string(ch), rs[0].ID)
		assert.Equal(t, t0, rs[0].Timestamp, "missing timestamp defaults to ingestion time")
	}
	assert.Equal(t, 6.1, p.Readings(entities.SensorPH)[0].Value)
	latest, ok := p.LatestSample()
	require.True(t, ok)
	assert.Equal(t, "s1", latest.ID)

	assert.Len(t, store.readings, 5)
	assert.Contains(t, pub.topics, "hydro/readings/ph")
}

func TestInvalidSampleIsDropped(t *testing.T) {
	p, store, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("bad", 15))))
	bad := sample("nan", 6)
	bad["tds"] = "lots"
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, bad)))

	assert.Empty(t, p.Readings(entities.SensorPH))
	assert.Empty(t, store.readings)
	_, ok := p.LatestSample()
	assert.False(t, ok)
}

func TestDuplicateSampleIdsAreDropped(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	assert.Len(t, p.Readings(entities.SensorPH), 1)

	noID := sample("", 6.2)
	delete(noID, "id")
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, noID)))
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, noID)))
	assert.Len(t, p.Readings(entities.SensorPH), 3, "generated ids never collide")
}

func TestRejectedSampleIdCanBeResent(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 15))))
	assert.Empty(t, p.Readings(entities.SensorPH))

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	rs := p.Readings(entities.SensorPH)
	require.Len(t, rs, 1)
	assert.Equal(t, 6.1, rs[0].Value)
}

func TestSteadyStreamRaisesNoOutliers(t *testing.T) {
	p, store, _ := newTestPipeline(t, func(o *Options) {
		d := DefaultOptions()
		o.SmoothingWindow = d.SmoothingWindow
		o.OutlierThreshold = d.OutlierThreshold
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample(fmt.Sprintf("s%d", i), 6.1))))
	}
	assert.Len(t, p.Smoothed(entities.SensorPH), 20)
	assert.Empty(t, p.Alerts())
	assert.Empty(t, store.alerts)
}

func TestOutlierRaisesOneWarning(t *testing.T) {
	p, store, pub := newTestPipeline(t, nil)

	for i, ph := range []float64{6.0, 6.2, 6.1, 9.5} {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample(fmt.Sprintf("s%d", i), ph))))
	}

	alerts := p.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, messages.AlertWarning, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "Outlier detected in sensor data at ")
	flagged, ok := alerts[0].Data.(messages.SensorReading)
	require.True(t, ok)
	assert.Equal(t, "s3:ph", flagged.ID)
	assert.Equal(t, 9.5, flagged.Value)

	// la stessa lettura resta anomala ma non genera un secondo alert
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s4", 6.1))))
	assert.Len(t, p.Alerts(), 1)
	assert.Len(t, store.alerts, 1)
	assert.Contains(t, pub.topics, "hydro/alerts")
}

func TestReadingBufferIsBounded(t *testing.T) {
	p, _, _ := newTestPipeline(t, func(o *Options) { o.ReadingCapacity = 3 })

	for i := 0; i < 5; i++ {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample(fmt.Sprintf("s%d", i), 6))))
	}
	rs := p.Readings(entities.SensorPH)
	require.Len(t, rs, 3)
	assert.Equal(t, "s2:ph", rs[0].ID)
	assert.Equal(t, "s4:ph", rs[2].ID)
}

func TestSmoothedSeries(t *testing.T) {
	p, _, _ := newTestPipeline(t, func(o *Options) { o.SmoothingWindow = 3 })

	for i, ph := range []float64{1, 2, 3, 4, 5} {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample(fmt.Sprintf("s%d", i), ph))))
	}
	sm := p.Smoothed(entities.SensorPH)
	require.Len(t, sm, 5)
	got := make([]float64, len(sm))
	for i, r := range sm {
		got[i] = r.Value
	}
	assert.InDeltaSlice(t, []float64{2, 2, 3, 4, 4.5}, got, 1e-9)
	assert.Equal(t, 5.0, p.Readings(entities.SensorPH)[4].Value, "raw buffer keeps original values")
}

func TestAlertLogIsNewestFirstAndCapped(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	for i := 0; i < 60; i++ {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeAlert, map[string]any{
			"id": fmt.Sprintf("a%d", i), "type": "info", "message": "m",
		})))
	}
	alerts := p.Alerts()
	require.Len(t, alerts, 50)
	assert.Equal(t, "a59", alerts[0].ID)
	assert.Equal(t, "a10", alerts[49].ID)
}

func TestInboundAlertDefaults(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeAlert, map[string]any{"message": "pump stalled", "type": "critical"})))
	a := p.Alerts()[0]
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, t0, a.Timestamp)
	assert.Len(t, p.ActiveAlerts(), 1)

	p.ClearAlerts()
	assert.Empty(t, p.Alerts())
}

func TestDeviceStatusReplacesEntry(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeDeviceStatus, map[string]any{
		"deviceId": "esp-1", "isConnected": true, "batteryLevel": 80, "firmwareVersion": "1.0",
	})))
	require.NoError(t, p.HandleMessage(frame(t, messages.TypeDeviceStatus, map[string]any{
		"deviceId": "esp-1", "isConnected": false,
	})))

	st := p.HardwareStatus()
	require.Len(t, st, 1)
	assert.False(t, st["esp-1"].IsConnected)
	assert.Nil(t, st["esp-1"].BatteryLevel, "no merge with the previous entry")
	assert.Empty(t, st["esp-1"].FirmwareVersion)
	assert.Equal(t, t0, st["esp-1"].LastUpdated)

	assert.Error(t, p.HandleMessage(frame(t, messages.TypeDeviceStatus, map[string]any{"isConnected": true})))
}

func TestCalibrationResult(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeCalibrationResult, map[string]any{
		"deviceId": "esp-1", "sensorId": "ph-1", "success": false, "message": "probe dry",
	})))
	cals := p.Calibrations()
	require.Contains(t, cals, "esp-1/ph-1")
	assert.False(t, cals["esp-1/ph-1"].Success)

	a := p.Alerts()[0]
	assert.Equal(t, messages.AlertWarning, a.Type)
	assert.Equal(t, "Calibration failed for sensor ph-1: probe dry", a.Message)
}

func TestBioSignal(t *testing.T) {
	p, store, _ := newTestPipeline(t, func(o *Options) { o.BioCapacity = 2 })

	for i := 0; i < 3; i++ {
		require.NoError(t, p.HandleMessage(frame(t, messages.TypeBioSignal, map[string]any{
			"id": fmt.Sprintf("b%d", i), "sampleRate": 100, "channel1": []float64{3, 3, 3, 3},
		})))
	}
	bio := p.BioSignals()
	require.Len(t, bio, 2)
	assert.Equal(t, "b1", bio[0].ID)
	assert.Equal(t, messages.QualityExcellent, bio[1].Quality)
	assert.Equal(t, 3.0, bio[1].Features.RMSAmplitude)
	assert.Len(t, store.bio, 3)

	assert.Error(t, p.HandleMessage(frame(t, messages.TypeBioSignal, map[string]any{"channel1": []float64{1}})))
}

func TestHeartbeatAndUnknownTypes(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	assert.True(t, p.LastHeartbeat().IsZero())
	require.NoError(t, p.HandleMessage([]byte(`{"type":"heartbeat"}`)))
	assert.Equal(t, t0, p.LastHeartbeat())

	require.NoError(t, p.HandleMessage([]byte(`{"type":"firmware_update","data":{}}`)))
	assert.Error(t, p.HandleMessage([]byte(`{"data":{}}`)))
	assert.Error(t, p.HandleMessage([]byte(`garbage`)))
}

func TestHandleErrorRaisesAlerts(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	p.HandleError(&wsconn.TransportError{Op: "read", URL: "ws://x/signals", Err: errors.New("EOF")})
	p.HandleError(wsconn.ErrReconnectExhausted)
	p.HandleError(&wsconn.HandlerError{Handler: 1, Panic: "boom"})
	p.HandleError(nil)

	alerts := p.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, messages.AlertCritical, alerts[0].Type)
	assert.Equal(t, messages.AlertError, alerts[1].Type)
	assert.Contains(t, alerts[1].Message, "Hardware connection error: ")
	assert.Len(t, p.ActiveAlerts(), 2)
}

func TestClearData(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	p.ClearData()
	assert.Empty(t, p.Readings(entities.SensorPH))
	assert.Empty(t, p.Smoothed(entities.SensorPH))
	_, ok := p.LatestSample()
	assert.False(t, ok)

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	assert.Len(t, p.Readings(entities.SensorPH), 1, "dedup is reset with the data")
}

func TestPublishFailureDoesNotStopIngestion(t *testing.T) {
	p, _, pub := newTestPipeline(t, nil)
	pub.err = errors.New("broker down")

	require.NoError(t, p.HandleMessage(frame(t, messages.TypeSensorData, sample("s1", 6.1))))
	assert.Len(t, p.Readings(entities.SensorPH), 1)
}
