package wsconn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newServer upgrades every request and hands the connection to fn with the
// 1-based connection number.
func newServer(t *testing.T, fn func(n int32, conn *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		fn(n, conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// rejectingServer fails every handshake.
func rejectingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig(url string) Config {
	return Config{URL: url, BaseDelay: 5 * time.Millisecond, MaxAttempts: 3, HandshakeTimeout: time.Second}
}

func TestSendMessageWhileDisconnected(t *testing.T) {
	m := New(testConfig("ws://127.0.0.1:1/signals"), quietLogger())
	err := m.SendMessage(map[string]string{"type": "calibrate"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDispatchInArrivalOrder(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) {
		for _, msg := range []string{"1", "2", "3"} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	var mu sync.Mutex
	var got []string
	m.AddMessageHandler(func(data []byte) error {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
		return nil
	})
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
	mu.Unlock()
	assert.Equal(t, int64(3), m.Stats().Received)
}

func TestConnectIsIdempotent(t *testing.T) {
	srv, hits := newServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })

	m := New(testConfig(wsURL(srv)), quietLogger())
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))

	assert.True(t, m.IsConnected())
	assert.Equal(t, int32(1), hits.Load())
}

func TestHandlerPanicDoesNotBlockOthers(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	delivered := make(chan string, 1)
	handlerErrs := make(chan error, 4)
	m.AddMessageHandler(func([]byte) error { panic("boom") })
	m.AddMessageHandler(func(data []byte) error {
		delivered <- string(data)
		return nil
	})
	m.AddErrorHandler(func(err error) { handlerErrs <- err })

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	select {
	case msg := <-delivered:
		assert.Equal(t, `{"type":"heartbeat"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("second handler never ran")
	}

	select {
	case err := <-handlerErrs:
		var herr *HandlerError
		require.True(t, errors.As(err, &herr))
		assert.Equal(t, "boom", herr.Panic)
	case <-time.After(2 * time.Second):
		t.Fatal("no handler error reported")
	}
	assert.Equal(t, int64(1), m.Stats().HandlerErrors)
}

func TestUnsubscribe(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("a"))
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	var removed, kept atomic.Int32
	unsubscribe := m.AddMessageHandler(func([]byte) error { removed.Add(1); return nil })
	m.AddMessageHandler(func([]byte) error { kept.Add(1); return nil })
	unsubscribe()
	unsubscribe()

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.Eventually(t, func() bool { return kept.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, removed.Load())
}

func TestReconnectAttemptsAreCapped(t *testing.T) {
	srv, hits := rejectingServer(t)

	m := New(testConfig(wsURL(srv)), quietLogger())
	exhausted := make(chan struct{}, 4)
	var transportErrs atomic.Int32
	m.AddErrorHandler(func(err error) {
		switch {
		case errors.Is(err, ErrReconnectExhausted):
			exhausted <- struct{}{}
		case IsTransport(err):
			transportErrs.Add(1)
		}
	})

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never gave up")
	}
	// dial iniziale + 3 tentativi
	assert.Equal(t, int32(4), hits.Load())
	assert.Equal(t, int32(4), transportErrs.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(4), hits.Load(), "no attempt after exhaustion")
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, int64(3), m.Stats().Reconnects)

	// an explicit Connect restores the budget
	require.Error(t, m.Connect(context.Background()))
	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("second round never gave up")
	}
	assert.Equal(t, int32(8), hits.Load())
	m.Disconnect()
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv, hits := rejectingServer(t)

	cfg := testConfig(wsURL(srv))
	cfg.BaseDelay = 100 * time.Millisecond
	m := New(cfg, quietLogger())

	require.Error(t, m.Connect(context.Background()))
	m.Disconnect()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	srv, hits := newServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			// chiusura brusca senza close frame
			_ = conn.UnderlyingConn().Close()
			return
		}
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	transport := make(chan error, 4)
	m.AddErrorHandler(func(err error) {
		if IsTransport(err) {
			transport <- err
		}
	})

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	select {
	case err := <-transport:
		var terr *TransportError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, "read", terr.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("no transport error reported")
	}
	assert.Eventually(t, func() bool {
		return hits.Load() == 2 && m.IsConnected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerNormalCloseDoesNotReconnect(t *testing.T) {
	srv, hits := newServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.Eventually(t, func() bool { return m.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendMessageWritesJSON(t *testing.T) {
	inbound := make(chan string, 1)
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err == nil {
			inbound <- string(data)
		}
		drain(conn)
	})

	m := New(testConfig(wsURL(srv)), quietLogger())
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	require.NoError(t, m.SendMessage(map[string]any{"type": "calibrate", "data": map[string]string{"sensorId": "ph-1"}}))
	select {
	case msg := <-inbound:
		assert.JSONEq(t, `{"type":"calibrate","data":{"sensorId":"ph-1"}}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestStateHandlerSeesLifecycle(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })

	m := New(testConfig(wsURL(srv)), quietLogger())
	var mu sync.Mutex
	var states []State
	m.AddStateHandler(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateClosing, StateDisconnected}, states)
}

func TestLinearBackOff(t *testing.T) {
	p := newReconnectPolicy(10*time.Millisecond, 3)
	assert.Equal(t, 10*time.Millisecond, p.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, p.NextBackOff())
	assert.Equal(t, 30*time.Millisecond, p.NextBackOff())
	assert.Equal(t, time.Duration(-1), p.NextBackOff())
	p.Reset()
	assert.Equal(t, 10*time.Millisecond, p.NextBackOff())
}

func TestDisconnectDuringHandshakeWins(t *testing.T) {
	srv, _ := newServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })

	m := New(testConfig(wsURL(srv)), quietLogger())
	var once sync.Once
	m.AddStateHandler(func(s State) {
		if s == StateConnecting {
			once.Do(m.Disconnect)
		}
	})

	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.SendMessage("x"), ErrNotConnected)

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()
	assert.True(t, m.IsConnected())
}

func TestDisconnectFromStateHandlerLeavesManagerReusable(t *testing.T) {
	srv, hits := newServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })

	m := New(testConfig(wsURL(srv)), quietLogger())
	var once sync.Once
	m.AddStateHandler(func(s State) {
		if s == StateConnected {
			once.Do(m.Disconnect)
		}
	})

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateDisconnected, m.State())
	assert.Never(t, func() bool { return m.State() != StateDisconnected }, 100*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()
	assert.True(t, m.IsConnected())
	assert.Equal(t, int32(2), hits.Load())
}
