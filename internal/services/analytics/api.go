package analytics

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
)

type API struct {
	sources  *Sources
	profiles []entities.PlantProfile
	now      func() time.Time
	router   *mux.Router
	log      *slog.Logger
}

func NewAPI(sources *Sources, profiles []entities.PlantProfile, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{
		sources:  sources,
		profiles: profiles,
		now:      time.Now,
		router:   mux.NewRouter(),
		log:      logger.With("component", "analytics-api"),
	}
	a.setupRoutes()
	return a
}

func (a *API) Router() *mux.Router { return a.router }

func (a *API) setupRoutes() {
	r := a.router
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/analytics/aggregate", a.aggregate).Methods(http.MethodGet)
	r.HandleFunc("/analytics/trend", a.trend).Methods(http.MethodGet)
	r.HandleFunc("/analytics/profiles", a.getProfiles).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type query struct {
	metric entities.SensorType
	days   int
	source string
}

func parseQuery(r *http.Request) (query, error) {
	q := r.URL.Query()
	out := query{
		metric: entities.SensorType(q.Get("metric")),
		days:   DefaultDays,
		source: q.Get("source"),
	}
	if !out.metric.IsChannel() {
		return out, errors.New("metric must be one of temperature, ph, tds, humidity, dissolvedOxy")
	}
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return out, errors.New("days must be a positive integer")
		}
		out.days = n
	}
	return out, nil
}

type aggregateResponse struct {
	Metric   entities.SensorType `json:"metric"`
	Interval Interval            `json:"interval"`
	Days     int                 `json:"days"`
	Source   string              `json:"source"`
	Buckets  []Bucket            `json:"buckets"`
}

// GET /analytics/aggregate?metric=ph&interval=hour&days=7&source=auto
func (a *API) aggregate(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := ParseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, src, err := a.sources.Readings(r.Context(), q.source, q.metric, q.days)
	if err != nil {
		a.sourceError(w, err)
		return
	}
	buckets, err := Aggregate(readings, interval)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, aggregateResponse{
		Metric: q.metric, Interval: interval, Days: q.days, Source: src, Buckets: buckets,
	})
}

type trendResponse struct {
	Trend
	Source string `json:"source"`
}

// GET /analytics/trend?metric=ph&days=7&source=auto
func (a *API) trend(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, src, err := a.sources.Readings(r.Context(), q.source, q.metric, q.days)
	if err != nil {
		a.sourceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trendResponse{
		Trend:  AnalyzeTrend(q.metric, readings, q.days, a.now(), a.profiles),
		Source: src,
	})
}

func (a *API) sourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownSource) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.log.Error("history query failed", "error", err)
	writeError(w, http.StatusBadGateway, err.Error())
}

func (a *API) getProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.profiles)
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": a.sources.Names()})
}
