package connection

// State is the connection state as seen by the event loop.
type State int32

const (
	// Disconnected means no session is open.
	Disconnected State = iota
	// Connecting means a handshake is in flight.
	Connecting
	// Connected means the session is established.
	Connected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
