package influx

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

// History reads sensor_reading points back from a bucket.
type History struct {
	api    api.QueryAPI
	bucket string
	limit  int
}

func NewHistory(q api.QueryAPI, bucket string) *History {
	return &History{api: q, bucket: bucket, limit: 10000}
}

func buildFlux(bucket string, ch entities.SensorType, days, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dd)
  |> filter(fn: (r) => r._measurement == %q and r.sensor_type == %q)
  |> filter(fn: (r) => r._field == "value")
  |> keep(columns: ["_time","_value","sensor_type","device_id"])
  |> sort(columns: ["_time"])
  |> tail(n:%d)
`, bucket, days, MeasurementReading, string(ch), limit)
}

// Readings returns the channel's readings of the trailing days, oldest first.
// Past the limit the most recent readings are kept.
func (h *History) Readings(ctx context.Context, ch entities.SensorType, days int) ([]messages.SensorReading, error) {
	if days <= 0 {
		days = 1
	}
	res, err := h.api.Query(ctx, buildFlux(h.bucket, ch, days, h.limit))
	if err != nil {
		return nil, fmt.Errorf("influx query %s: %w", ch, err)
	}
	defer res.Close()

	var out []messages.SensorReading
	for res.Next() {
		if r, ok := recordToReading(res.Record()); ok {
			out = append(out, r)
		}
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate %s: %w", ch, err)
	}
	return out, nil
}

func recordToReading(rec *query.FluxRecord) (messages.SensorReading, bool) {
	var value float64
	switch v := rec.Value().(type) {
	case float64:
		value = v
	case int64:
		value = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return messages.SensorReading{}, false
		}
		value = f
	default:
		return messages.SensorReading{}, false
	}

	r := messages.SensorReading{
		Timestamp: rec.Time().UTC(),
		Value:     value,
	}
	if s, ok := rec.ValueByKey("sensor_type").(string); ok {
		r.SensorType = entities.SensorType(s)
		r.Unit = r.SensorType.Unit()
	}
	if s, ok := rec.ValueByKey("device_id").(string); ok {
		r.DeviceID = s
	}
	r.ID = fmt.Sprintf("influx:%s:%d", r.SensorType, r.Timestamp.UnixNano())
	return r, true
}
