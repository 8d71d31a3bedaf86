package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/influx"
)

const (
	SourceAuto    = "auto"
	SourceInflux  = "influx"
	SourceBackend = "backend"
	SourceLive    = "live"
)

var ErrUnknownSource = errors.New("analytics: unknown source")

type influxSource struct{ h *influx.History }

// InfluxSource reads history through Flux.
func InfluxSource(h *influx.History) HistorySource { return influxSource{h: h} }

func (s influxSource) Name() string { return SourceInflux }

func (s influxSource) Readings(ctx context.Context, ch entities.SensorType, days int) ([]messages.SensorReading, error) {
	return s.h.Readings(ctx, ch, days)
}

type backendSource struct {
	c   SampleFetcher
	now func() time.Time
}

// BackendSource explodes the samples stored by the REST backend. The backend
// has no server-side filter, so the window is applied here.
func BackendSource(c SampleFetcher, now func() time.Time) HistorySource {
	if now == nil {
		now = time.Now
	}
	return backendSource{c: c, now: now}
}

func (s backendSource) Name() string { return SourceBackend }

func (s backendSource) Readings(ctx context.Context, ch entities.SensorType, days int) ([]messages.SensorReading, error) {
	samples, err := s.c.FetchReadings(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().AddDate(0, 0, -days)
	var out []messages.SensorReading
	for _, sm := range samples {
		if !sm.Timestamp.IsZero() && sm.Timestamp.Before(cutoff) {
			continue
		}
		for _, r := range sm.Readings() {
			if r.SensorType == ch {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// Sources picks a history source by name; auto tries them in order and takes
// the first that answers with data.
type Sources struct {
	ordered []HistorySource
	log     *slog.Logger
}

func NewSources(logger *slog.Logger, srcs ...HistorySource) *Sources {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sources{log: logger.With("component", "history")}
	for _, src := range srcs {
		if src != nil {
			s.ordered = append(s.ordered, src)
		}
	}
	return s
}

func (s *Sources) Names() []string {
	out := make([]string, 0, len(s.ordered))
	for _, src := range s.ordered {
		out = append(out, src.Name())
	}
	return out
}

// Readings returns the readings and the name of the source that served them.
func (s *Sources) Readings(ctx context.Context, name string, ch entities.SensorType, days int) ([]messages.SensorReading, string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = SourceAuto
	}
	if name != SourceAuto {
		for _, src := range s.ordered {
			if src.Name() == name {
				rs, err := src.Readings(ctx, ch, days)
				return rs, name, err
			}
		}
		return nil, "", fmt.Errorf("%w %q", ErrUnknownSource, name)
	}

	var errs []error
	for _, src := range s.ordered {
		rs, err := src.Readings(ctx, ch, days)
		if err != nil {
			s.log.Warn("history source failed, trying next", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if len(rs) > 0 {
			return rs, src.Name(), nil
		}
	}
	if len(errs) > 0 && len(errs) == len(s.ordered) {
		return nil, "", errors.Join(errs...)
	}
	return nil, SourceAuto, nil
}
