package rabbitmq

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client the package uses.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	published    []published
	subs         map[string]mqtt.MessageHandler
	unsubscribed []string
	publishErr   error
	connected    bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: map[string]mqtt.MessageHandler{}, connected: true}
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = cb
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) deliver(filter, topic string, payload []byte) {
	c.mu.Lock()
	cb := c.subs[filter]
	c.mu.Unlock()
	cb(c, &fakeMessage{topic: topic, payload: payload})
}

func (c *fakeClient) subscribed(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[filter]
	return ok
}
