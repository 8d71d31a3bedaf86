// Package wsconn owns a single client WebSocket connection: it dials,
// dispatches inbound frames to subscribers in arrival order, and reconnects
// with a linear backoff after unexpected closes.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

type Config struct {
	URL              string
	BaseDelay        time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		BaseDelay:        time.Second,
		MaxAttempts:      5,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

type (
	MessageHandler func(data []byte) error
	ErrorHandler   func(err error)
	StateHandler   func(s State)
)

type entry[F any] struct {
	id int
	fn F
}

// Stats are monotonic counters for the lifetime of the manager.
type Stats struct {
	Received      int64
	Reconnects    int64
	HandlerErrors int64
}

type Manager struct {
	cfg    Config
	log    *slog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	gen     uint64
	closing bool
	policy  backoff.BackOff
	timer   *time.Timer

	writeMu sync.Mutex

	hmu        sync.RWMutex
	nextID     int
	onMessage  []entry[MessageHandler]
	onError    []entry[ErrorHandler]
	onState    []entry[StateHandler]
	received   atomic.Int64
	reconnects atomic.Int64
	handlerErr atomic.Int64
}

func New(cfg Config, logger *slog.Logger) *Manager {
	def := DefaultConfig(cfg.URL)
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		log:    logger.With("component", "wsconn", "url", cfg.URL),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:  StateDisconnected,
		policy: newReconnectPolicy(cfg.BaseDelay, cfg.MaxAttempts),
	}
}

// Connect dials the endpoint. It is a no-op while already connecting or
// connected, and it restores the full reconnect budget.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	m.closing = false
	m.policy.Reset()
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()
	m.emitState(StateConnecting)
	return m.dial(ctx, gen)
}

// Disconnect closes the socket and cancels any pending reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	m.gen++
	gen := m.gen
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()

	if conn != nil {
		m.emitState(StateClosing)
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	// a Connect issued meanwhile owns the state now
	if m.commit(gen, StateDisconnected) {
		m.log.Info("disconnected")
	}
}

// SendMessage JSON-encodes payload and writes it as a text frame.
func (m *Manager) SendMessage(payload any) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if conn == nil || state != StateConnected {
		m.log.Warn("send skipped, socket not connected", "state", state)
		return ErrNotConnected
	}

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "write", URL: m.cfg.URL, Err: err}
	}
	return nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) IsConnected() bool { return m.State() == StateConnected }

func (m *Manager) Stats() Stats {
	return Stats{
		Received:      m.received.Load(),
		Reconnects:    m.reconnects.Load(),
		HandlerErrors: m.handlerErr.Load(),
	}
}

func (m *Manager) AddMessageHandler(fn MessageHandler) func() {
	return subscribe(m, &m.onMessage, fn)
}

func (m *Manager) AddErrorHandler(fn ErrorHandler) func() {
	return subscribe(m, &m.onError, fn)
}

func (m *Manager) AddStateHandler(fn StateHandler) func() {
	return subscribe(m, &m.onState, fn)
}

func subscribe[F any](m *Manager, list *[]entry[F], fn F) func() {
	m.hmu.Lock()
	m.nextID++
	id := m.nextID
	*list = append(*list, entry[F]{id: id, fn: fn})
	m.hmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.hmu.Lock()
			defer m.hmu.Unlock()
			*list = slices.DeleteFunc(*list, func(e entry[F]) bool { return e.id == id })
		})
	}
}

// dial runs with the state already CONNECTING. gen is the generation seen
// when the attempt started; a Disconnect in between makes it stale.
func (m *Manager) dial(ctx context.Context, gen uint64) error {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		terr := &TransportError{Op: "dial", URL: m.cfg.URL, Err: err}
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return errAbandoned
		}
		m.state = StateError
		m.mu.Unlock()
		m.log.Warn("dial failed", "error", err)
		m.emitState(StateError)
		m.notifyError(terr)
		m.scheduleReconnect()
		return terr
	}

	m.mu.Lock()
	if m.gen != gen {
		// Disconnect arrivato durante l'handshake
		m.mu.Unlock()
		_ = conn.Close()
		return errAbandoned
	}
	m.gen++
	gen = m.gen
	m.conn = conn
	m.policy.Reset()
	m.state = StateConnected
	m.mu.Unlock()

	m.emitState(StateConnected)
	m.log.Info("connected")
	go m.readLoop(conn, gen)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, gen, err)
			return
		}
		m.received.Add(1)
		m.dispatch(data)
	}
}

func (m *Manager) handleClose(conn *websocket.Conn, gen uint64, err error) {
	normal := websocket.IsCloseError(err, websocket.CloseNormalClosure)
	next := StateError
	if normal {
		next = StateDisconnected
	}
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	changed := m.state != next
	m.state = next
	m.mu.Unlock()
	_ = conn.Close()
	if changed {
		m.emitState(next)
	}

	if normal {
		m.log.Info("server closed the connection")
		return
	}

	m.log.Warn("connection lost", "error", err)
	m.notifyError(&TransportError{Op: "read", URL: m.cfg.URL, Err: err})
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return
	}
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.mu.Unlock()
		m.log.Error("giving up reconnecting", "attempts", m.cfg.MaxAttempts, "fatal", true)
		m.notifyError(ErrReconnectExhausted)
		return
	}
	m.stopTimerLocked()
	m.timer = time.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()
	m.log.Info("reconnect scheduled", "delay", delay)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	m.timer = nil
	if m.closing || m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.reconnects.Add(1)
	m.emitState(StateConnecting)
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	defer cancel()
	_ = m.dial(ctx, gen)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// commit sets the state only if gen is still current, so a transition
// decided by a superseded attempt is dropped.
func (m *Manager) commit(gen uint64, s State) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	if m.state == s {
		m.mu.Unlock()
		return true
	}
	m.state = s
	m.mu.Unlock()
	m.emitState(s)
	return true
}

func (m *Manager) emitState(s State) {
	m.hmu.RLock()
	hs := slices.Clone(m.onState)
	m.hmu.RUnlock()
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("state handler panicked", "handler", h.id, "panic", r)
				}
			}()
			h.fn(s)
		}()
	}
}

func (m *Manager) dispatch(data []byte) {
	m.hmu.RLock()
	hs := slices.Clone(m.onMessage)
	m.hmu.RUnlock()
	for _, h := range hs {
		if err := m.invoke(h, data); err != nil {
			m.handlerErr.Add(1)
			m.log.Error("message handler failed", "handler", h.id, "error", err)
			m.notifyError(err)
		}
	}
}

func (m *Manager) invoke(h entry[MessageHandler], data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Handler: h.id, Panic: r}
		}
	}()
	if e := h.fn(data); e != nil {
		return &HandlerError{Handler: h.id, Err: e}
	}
	return nil
}

func (m *Manager) notifyError(err error) {
	m.hmu.RLock()
	hs := slices.Clone(m.onError)
	m.hmu.RUnlock()
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("error handler panicked", "handler", h.id, "panic", r)
				}
			}()
			h.fn(err)
		}()
	}
}

// IsTransport reports whether err came from the socket itself.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
