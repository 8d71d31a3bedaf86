package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

type Direction string

const (
	TrendIncreasing   Direction = "Increasing"
	TrendDecreasing   Direction = "Decreasing"
	TrendStable       Direction = "Stable"
	TrendInsufficient Direction = "Insufficient data"
)

const (
	slopeThreshold = 0.1
	DefaultDays    = 7
)

type RangeClass string

const (
	BelowOptimal  RangeClass = "Below optimal"
	WithinOptimal RangeClass = "Within optimal"
	AboveOptimal  RangeClass = "Above optimal"
)

type ProfileStatus struct {
	Plant  string         `json:"plant"`
	Class  RangeClass     `json:"status"`
	Range  entities.Range `json:"range"`
	Detail string         `json:"detail"`
}

type Trend struct {
	Metric      entities.SensorType `json:"metric"`
	Days        int                 `json:"days"`
	Points      int                 `json:"points"`
	Average     float64             `json:"average"`
	Slope       float64             `json:"slope"`
	Trend       Direction           `json:"trend"`
	Profiles    []ProfileStatus     `json:"profiles,omitempty"`
	RangeStatus string              `json:"rangeStatus"`
}

// AnalyzeTrend looks at the readings of ch in [now-days, now]. Fewer than two
// points is reported as TrendInsufficient, never as an error.
func AnalyzeTrend(ch entities.SensorType, readings []messages.SensorReading, days int, now time.Time, profiles []entities.PlantProfile) Trend {
	if days <= 0 {
		days = DefaultDays
	}
	out := Trend{Metric: ch, Days: days, Trend: TrendInsufficient}

	cutoff := now.AddDate(0, 0, -days)
	recent := make([]messages.SensorReading, 0, len(readings))
	for _, r := range readings {
		if r.SensorType != "" && r.SensorType != ch {
			continue
		}
		if r.Timestamp.Before(cutoff) || r.Timestamp.After(now) {
			continue
		}
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		recent = append(recent, r)
	}
	out.Points = len(recent)
	if len(recent) < 2 {
		return out
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Timestamp.Before(recent[j].Timestamp) })

	values := make([]float64, len(recent))
	for i, r := range recent {
		values[i] = r.Value
	}
	n := len(values)
	// su n dispari il valore centrale finisce in entrambe le metà
	first := values[:(n+1)/2]
	second := values[n/2:]
	slope := mean(second) - mean(first)

	out.Average = mean(values)
	out.Slope = math.Round(slope*100) / 100
	switch {
	case slope > slopeThreshold:
		out.Trend = TrendIncreasing
	case slope < -slopeThreshold:
		out.Trend = TrendDecreasing
	default:
		out.Trend = TrendStable
	}

	parts := make([]string, 0, len(profiles))
	for _, p := range profiles {
		rng, err := p.Optimal(ch)
		if err != nil {
			continue
		}
		st := ProfileStatus{Plant: p.Name, Range: rng, Class: classify(out.Average, rng)}
		st.Detail = fmt.Sprintf("%s: %s (%s).", p.Name, st.Class, rng)
		out.Profiles = append(out.Profiles, st)
		parts = append(parts, st.Detail)
	}
	out.RangeStatus = strings.Join(parts, " ")
	return out
}

func classify(v float64, r entities.Range) RangeClass {
	switch {
	case v < r.Min:
		return BelowOptimal
	case v > r.Max:
		return AboveOptimal
	default:
		return WithinOptimal
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
