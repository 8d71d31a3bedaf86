package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

// Connection is the part of the stream manager the API needs.
type Connection interface {
	State() wsconn.State
	Stats() wsconn.Stats
	SendMessage(payload any) error
}

// Calibrator forwards calibration requests to the backend.
type Calibrator interface {
	CalibrateSensor(ctx context.Context, sensorID string) (*messages.CalibrationResult, error)
}

type API struct {
	pipeline *Pipeline
	conn     Connection
	backend  Calibrator
	router   *mux.Router
	log      *slog.Logger
	timeout  time.Duration
}

// NewAPI mounts the monitor routes. backend may be nil.
func NewAPI(p *Pipeline, conn Connection, backend Calibrator, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		pipeline: p,
		conn:     conn,
		backend:  backend,
		router:   mux.NewRouter(),
		log:      logger.With("component", "monitor-api"),
		timeout:  5 * time.Second,
	}
	a.setupRoutes()
	return a
}

func (a *API) Router() *mux.Router { return a.router }

func (a *API) setupRoutes() {
	r := a.router
	r.HandleFunc("/api/alerts", a.getAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", a.clearAlerts).Methods(http.MethodDelete)
	r.HandleFunc("/api/readings/latest", a.getLatest).Methods(http.MethodGet)
	r.HandleFunc("/api/readings", a.clearReadings).Methods(http.MethodDelete)
	r.HandleFunc("/api/readings/{channel}", a.getReadings).Methods(http.MethodGet)
	r.HandleFunc("/api/hardware/status", a.getHardware).Methods(http.MethodGet)
	r.HandleFunc("/api/hardware/calibrations", a.getCalibrations).Methods(http.MethodGet)
	r.HandleFunc("/api/hardware/calibrate/{sensorId}", a.calibrate).Methods(http.MethodPost)
	r.HandleFunc("/api/biosignals", a.getBioSignals).Methods(http.MethodGet)
	r.HandleFunc("/api/connection", a.getConnection).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := a.pipeline.Alerts()
	if r.URL.Query().Get("active") == "true" {
		alerts = a.pipeline.ActiveAlerts()
	}
	if alerts == nil {
		alerts = []messages.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *API) clearAlerts(w http.ResponseWriter, _ *http.Request) {
	a.pipeline.ClearAlerts()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) clearReadings(w http.ResponseWriter, _ *http.Request) {
	a.pipeline.ClearData()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getLatest(w http.ResponseWriter, _ *http.Request) {
	s, ok := a.pipeline.LatestSample()
	if !ok {
		writeError(w, http.StatusNotFound, "no sample received yet")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GET /api/readings/{channel}?smoothed=true&limit=100
func (a *API) getReadings(w http.ResponseWriter, r *http.Request) {
	ch := entities.SensorType(mux.Vars(r)["channel"])
	if !ch.IsChannel() {
		writeError(w, http.StatusBadRequest, "unknown channel "+string(ch))
		return
	}
	q := r.URL.Query()
	var out []messages.SensorReading
	if q.Get("smoothed") == "true" {
		out = a.pipeline.Smoothed(ch)
	} else {
		out = a.pipeline.Readings(ch)
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(out) {
			out = out[len(out)-n:]
		}
	}
	if out == nil {
		out = []messages.SensorReading{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getHardware(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.pipeline.HardwareStatus())
}

func (a *API) getCalibrations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.pipeline.Calibrations())
}

func (a *API) getBioSignals(w http.ResponseWriter, _ *http.Request) {
	out := a.pipeline.BioSignals()
	if out == nil {
		out = []messages.BioSignalReading{}
	}
	writeJSON(w, http.StatusOK, out)
}

type connectionView struct {
	State         wsconn.State `json:"state"`
	Connected     bool         `json:"connected"`
	Received      int64        `json:"messagesReceived"`
	Reconnects    int64        `json:"reconnects"`
	HandlerErrors int64        `json:"handlerErrors"`
	LastHeartbeat *time.Time   `json:"lastHeartbeat,omitempty"`
}

func (a *API) getConnection(w http.ResponseWriter, _ *http.Request) {
	st := a.conn.State()
	stats := a.conn.Stats()
	v := connectionView{
		State:         st,
		Connected:     st == wsconn.StateConnected,
		Received:      stats.Received,
		Reconnects:    stats.Reconnects,
		HandlerErrors: stats.HandlerErrors,
	}
	if hb := a.pipeline.LastHeartbeat(); !hb.IsZero() {
		v.LastHeartbeat = &hb
	}
	writeJSON(w, http.StatusOK, v)
}

type calibrateResponse struct {
	SensorID     string                      `json:"sensorId"`
	CommandSent  bool                        `json:"commandSent"`
	Backend      *messages.CalibrationResult `json:"backend,omitempty"`
	BackendError string                      `json:"backendError,omitempty"`
	SocketError  string                      `json:"socketError,omitempty"`
}

// POST /api/hardware/calibrate/{sensorId}: asks the backend and sends a
// calibrate command on the stream. Accepted if either path succeeds.
func (a *API) calibrate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["sensorId"])
	resp := calibrateResponse{SensorID: id}

	cmd, err := messages.Encode(messages.TypeCalibrate, messages.CalibrateCommand{SensorID: id, Timestamp: time.Now().UTC()})
	if err == nil {
		err = a.conn.SendMessage(cmd)
	}
	if err != nil {
		resp.SocketError = err.Error()
	} else {
		resp.CommandSent = true
	}

	if a.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()
		res, err := a.backend.CalibrateSensor(ctx, id)
		if err != nil {
			resp.BackendError = err.Error()
			a.log.Warn("backend calibration failed", "sensor", id, "error", err)
		} else {
			resp.Backend = res
		}
	}

	backendOK := a.backend != nil && resp.BackendError == ""
	switch {
	case resp.CommandSent || backendOK:
		writeJSON(w, http.StatusAccepted, resp)
	case errors.Is(err, wsconn.ErrNotConnected) && a.backend == nil:
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		writeJSON(w, http.StatusBadGateway, resp)
	}
}
