package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes JSON documents on MQTT topics.
type IPublisher interface {
	PublishJSON(topic string, v any) error
	Close()
}

type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
	log     *slog.Logger
}

func NewPublisher(client mqtt.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		timeout: 5 * time.Second,
		log:     logger.With("component", "mqtt-publisher"),
	}
}

func (p *Publisher) PublishJSON(topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, qosFor(topic), false, b)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timeout after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debug("published", "topic", topic, "bytes", len(b))
	return nil
}

func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("client disconnected")
	}
}
