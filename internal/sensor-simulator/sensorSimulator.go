// Package sensor_simulator serves a fake /signals WebSocket endpoint that
// streams the messages a hydroponic sensor board would send.
package sensor_simulator

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/dedup"
)

const statusEvery = 10

type Options struct {
	Interval  time.Duration
	SpikeRate float64
	DeviceID  string
	Profile   entities.PlantProfile
	Seed      int64
	Now       func() time.Time
}

type SensorSimulator struct {
	opts      Options
	generator *DataGenerator
	upgrader  websocket.Upgrader
	deduper   *dedup.Deduper
	log       *slog.Logger
	clients   atomic.Int64
}

func NewSensorSimulator(opts Options, logger *slog.Logger) *SensorSimulator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.DeviceID == "" {
		opts.DeviceID = "sim-01"
	}
	if opts.Profile.Name == "" {
		opts.Profile = entities.DefaultProfiles()[0]
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorSimulator{
		opts:      opts,
		generator: NewDataGenerator(opts.Profile, opts.SpikeRate, opts.Seed),
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		deduper:   dedup.New(2*time.Minute, 10000),
		log:       logger.With("component", "simulator", "device", opts.DeviceID),
	}
}

func (s *SensorSimulator) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/signals", s.serveSignals)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func (s *SensorSimulator) Clients() int64 { return s.clients.Load() }

func (s *SensorSimulator) serveSignals(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "error", err)
		return
	}
	n := s.clients.Add(1)
	s.log.Info("client connected", "remote", r.RemoteAddr, "clients", n)
	defer func() {
		_ = conn.Close()
		s.log.Info("client disconnected", "remote", r.RemoteAddr, "clients", s.clients.Add(-1))
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	replies := make(chan []byte, 8)
	go s.readLoop(ctx, cancel, conn, replies)
	s.stream(ctx, conn, replies)
}

// readLoop logs inbound frames and answers calibrate commands. Only the
// stream loop writes to the socket.
func (s *SensorSimulator) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, replies chan<- []byte) {
	defer cancel()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply, err := s.handleInbound(raw)
		if err != nil {
			s.log.Warn("invalid client message", "error", err)
			continue
		}
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (s *SensorSimulator) handleInbound(raw []byte) ([]byte, error) {
	env, err := messages.Decode(raw)
	if err != nil {
		return nil, err
	}
	s.log.Info("client message", "type", env.Type)
	if env.Type != messages.TypeCalibrate {
		return nil, nil
	}
	var cmd messages.CalibrateCommand
	if err := env.Into(&cmd); err != nil {
		return nil, err
	}
	if !s.deduper.ShouldProcess(cmd.SensorID + "@" + cmd.Timestamp.String()) {
		return nil, nil
	}
	res := messages.CalibrationResult{
		DeviceID:  s.opts.DeviceID,
		SensorID:  cmd.SensorID,
		Success:   cmd.SensorID != "",
		Offset:    0,
		Scale:     1,
		Timestamp: s.opts.Now().UTC(),
	}
	if !res.Success {
		res.Message = "missing sensor id"
	}
	return messages.Encode(messages.TypeCalibrationResult, res)
}

func (s *SensorSimulator) stream(ctx context.Context, conn *websocket.Conn, replies <-chan []byte) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	tick := 0
	emit := func() bool {
		for _, f := range s.frames(tick) {
			if err := s.write(conn, f); err != nil {
				s.log.Warn("write failed", "error", err)
				return false
			}
		}
		tick++
		return true
	}

	if !emit() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case reply := <-replies:
			if err := s.write(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			if !emit() {
				return
			}
		}
	}
}

func (s *SensorSimulator) write(conn *websocket.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// frames builds one tick: sensor data, bio signal, heartbeat and, every
// statusEvery ticks starting from the first, the device status.
func (s *SensorSimulator) frames(tick int) [][]byte {
	now := s.opts.Now()
	var out [][]byte
	add := func(t messages.MessageType, v any) {
		b, err := messages.Encode(t, v)
		if err != nil {
			s.log.Error("encode", "type", t, "error", err)
			return
		}
		out = append(out, b)
	}

	if tick%statusEvery == 0 {
		battery, signal := 100-float64(tick%100)/2, -55.0
		add(messages.TypeDeviceStatus, messages.HardwareStatus{
			DeviceID:        s.opts.DeviceID,
			DeviceType:      entities.DeviceESP32,
			IsConnected:     true,
			LastSeen:        now.UTC().Format(time.RFC3339),
			BatteryLevel:    &battery,
			SignalStrength:  &signal,
			FirmwareVersion: "1.4.2",
		})
	}
	add(messages.TypeSensorData, s.generator.Next(s.opts.DeviceID, now))
	add(messages.TypeBioSignal, s.generator.BioSignal(s.opts.DeviceID, now))
	add(messages.TypeHeartbeat, messages.Heartbeat{DeviceID: s.opts.DeviceID, Timestamp: now.UTC()})
	return out
}
