package wsconn

// State of the managed connection.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateClosing      State = "CLOSING"
	StateError        State = "ERROR"
)

func (s State) String() string { return string(s) }
