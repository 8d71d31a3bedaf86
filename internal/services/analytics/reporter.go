package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/ringbuffer"
)

// AggregatedBucket is what the reporter publishes on hydro/aggregated/<channel>.
type AggregatedBucket struct {
	Channel  entities.SensorType `json:"channel"`
	Interval Interval            `json:"interval"`
	Bucket
}

// Reporter listens to the accepted readings published by the monitor, keeps a
// live window per channel and periodically publishes minute buckets of what
// arrived since the previous cycle.
type Reporter struct {
	consumer  rabbitmq.IConsumer
	publisher rabbitmq.IPublisher
	interval  time.Duration
	now       func() time.Time
	log       *slog.Logger

	mutex   sync.Mutex
	live    map[entities.SensorType]*ringbuffer.Buffer[messages.SensorReading]
	pending map[entities.SensorType][]messages.SensorReading
}

func NewReporter(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, interval time.Duration, capacity int, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		consumer:  consumer,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
		log:       logger.With("component", "reporter"),
		live:      make(map[entities.SensorType]*ringbuffer.Buffer[messages.SensorReading], len(entities.Channels)),
		pending:   make(map[entities.SensorType][]messages.SensorReading),
	}
	for _, ch := range entities.Channels {
		r.live[ch] = ringbuffer.New[messages.SensorReading](capacity)
	}
	return r
}

func (r *Reporter) messageHandler(topic string, message mqtt.Message) error {
	var reading messages.SensorReading
	if err := json.Unmarshal(message.Payload(), &reading); err != nil {
		return fmt.Errorf("reporter: decode %s: %w", topic, err)
	}
	if reading.SensorType == "" {
		reading.SensorType = entities.SensorType(topic[strings.LastIndex(topic, "/")+1:])
	}
	r.add(reading)
	return nil
}

func (r *Reporter) add(reading messages.SensorReading) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	buf, ok := r.live[reading.SensorType]
	if !ok {
		r.log.Debug("reading on unknown channel", "channel", reading.SensorType)
		return
	}
	buf.Push(reading)
	r.pending[reading.SensorType] = append(r.pending[reading.SensorType], reading)
}

// Start consumes in background and runs the aggregation ticker until ctx ends.
func (r *Reporter) Start(ctx context.Context) {
	r.consumer.SetHandler(r.messageHandler)

	// il consumer blocca: va in goroutine, altrimenti il ticker non parte
	go func() {
		if err := r.consumer.ConsumeMessage(ctx); err != nil {
			r.log.Error("consumer stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.aggregateAndPublish()
			r.publisher.Close()
			return
		case <-ticker.C:
			r.aggregateAndPublish()
		}
	}
}

func (r *Reporter) aggregateAndPublish() int {
	r.mutex.Lock()
	pending := r.pending
	r.pending = make(map[entities.SensorType][]messages.SensorReading)
	r.mutex.Unlock()

	published := 0
	for ch, readings := range pending {
		if len(readings) == 0 {
			continue
		}
		buckets, err := Aggregate(readings, IntervalMinute)
		if err != nil {
			r.log.Error("aggregate", "channel", ch, "error", err)
			continue
		}
		topic := rabbitmq.Topic(rabbitmq.TopicAggregated, string(ch))
		for _, b := range buckets {
			out := AggregatedBucket{Channel: ch, Interval: IntervalMinute, Bucket: b}
			if err := r.publisher.PublishJSON(topic, out); err != nil {
				r.log.Warn("publish bucket", "topic", topic, "error", err)
				continue
			}
			published++
		}
		r.log.Debug("aggregation cycle", "channel", ch, "readings", len(readings), "buckets", len(buckets))
	}
	return published
}

// Live is the reporter window as a history source.
func (r *Reporter) Live() HistorySource { return liveSource{r} }

type liveSource struct{ r *Reporter }

func (s liveSource) Name() string { return SourceLive }

func (s liveSource) Readings(_ context.Context, ch entities.SensorType, days int) ([]messages.SensorReading, error) {
	s.r.mutex.Lock()
	buf, ok := s.r.live[ch]
	var all []messages.SensorReading
	if ok {
		all = buf.Snapshot()
	}
	now := s.r.now()
	s.r.mutex.Unlock()

	cutoff := now.AddDate(0, 0, -days)
	out := all[:0]
	for _, rd := range all {
		if !rd.Timestamp.Before(cutoff) {
			out = append(out, rd)
		}
	}
	return out, nil
}
