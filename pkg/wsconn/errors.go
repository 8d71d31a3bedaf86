package wsconn

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by SendMessage outside the CONNECTED state.
	ErrNotConnected = errors.New("wsconn: not connected")
	// ErrReconnectExhausted is reported once the retry budget is spent.
	ErrReconnectExhausted = errors.New("wsconn: reconnect attempts exhausted")
	errAbandoned          = errors.New("wsconn: connection abandoned")
)

// TransportError wraps a dial, read or write failure of the socket.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("wsconn %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandlerError is a message handler that returned an error or panicked.
type HandlerError struct {
	Handler int
	Err     error
	Panic   any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("wsconn: handler %d panicked: %v", e.Handler, e.Panic)
	}
	return fmt.Sprintf("wsconn: handler %d: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
