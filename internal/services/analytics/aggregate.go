// Package analytics buckets reading history and derives trends against the
// plant profiles.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
)

var ErrUnknownInterval = errors.New("analytics: unknown interval")

func ParseInterval(s string) (Interval, error) {
	switch i := Interval(s); i {
	case IntervalMinute, IntervalHour, IntervalDay:
		return i, nil
	case "":
		return IntervalHour, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownInterval, s)
	}
}

// truncate keys a timestamp in UTC so buckets do not depend on the host zone.
func (i Interval) truncate(t time.Time) (time.Time, error) {
	t = t.UTC()
	switch i {
	case IntervalMinute:
		return t.Truncate(time.Minute), nil
	case IntervalHour:
		return t.Truncate(time.Hour), nil
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w %q", ErrUnknownInterval, string(i))
	}
}

type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	AvgValue  float64   `json:"avgValue"`
	MinValue  float64   `json:"minValue"`
	MaxValue  float64   `json:"maxValue"`
	Count     int       `json:"count"`
}

// Aggregate groups readings by truncated timestamp, oldest bucket first.
func Aggregate(readings []messages.SensorReading, interval Interval) ([]Bucket, error) {
	if _, err := interval.truncate(time.Time{}); err != nil {
		return nil, err
	}
	type acc struct {
		sum, min, max float64
		n             int
	}
	groups := make(map[time.Time]*acc)
	for _, r := range readings {
		if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
			continue
		}
		key, _ := interval.truncate(r.Timestamp)
		a, ok := groups[key]
		if !ok {
			a = &acc{min: r.Value, max: r.Value}
			groups[key] = a
		}
		a.sum += r.Value
		a.min = math.Min(a.min, r.Value)
		a.max = math.Max(a.max, r.Value)
		a.n++
	}

	out := make([]Bucket, 0, len(groups))
	for ts, a := range groups {
		out = append(out, Bucket{
			Timestamp: ts,
			AvgValue:  a.sum / float64(a.n),
			MinValue:  a.min,
			MaxValue:  a.max,
			Count:     a.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
