package rabbitmq

import (
	"context"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes to topics and feeds every message to its handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer subscribes to a set of topic filters (wildcards allowed).
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
	log     *slog.Logger
}

func NewConsumer(client mqtt.Client, topics []string, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		topics:  topics,
		handler: handler,
		log:     logger.With("component", "mqtt-consumer"),
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes and blocks until ctx is cancelled.
// Handler errors are logged and never stop consumption.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	for _, topic := range c.topics {
		token := c.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.log.Warn("no handler set", "topic", msg.Topic())
				return
			}
			if err := c.handler(msg.Topic(), msg); err != nil {
				c.log.Error("handling message", "topic", msg.Topic(), "error", err)
			}
		})
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
		c.log.Info("subscribed", "topic", topic)
	}

	<-ctx.Done()

	c.client.Unsubscribe(c.topics...).Wait()
	return nil
}
