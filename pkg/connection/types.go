// Package connection manages the bidirectional streaming connection to the
// simulation backend.
//
// It owns exactly one WebSocket at a time, delivers decoded protocol events
// on a channel, and supervises reconnection after unexpected closures while
// a run is active. A caller-issued Close cancels any pending reconnect and
// is terminal.
//
// Example usage:
//
//	mgr := connection.New(connection.Config{
//	    Retry:           connection.RetryPolicy{Delay: 3 * time.Second},
//	    ShouldReconnect: func() bool { return machine.State().Status == simulation.StatusRunning },
//	}, logger.Default())
//	defer mgr.Close()
//
//	if err := mgr.Connect("ws://localhost:8765/simulation"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range mgr.Events() {
//	    switch event.Type {
//	    case connection.EventMessage:
//	        machine.Deliver(event.Message)
//	    }
//	}
package connection

import (
	"time"

	"github.com/evosim/evoclient/pkg/protocol"
)

// State describes the connection lifecycle.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventType identifies a connection event.
type EventType int

// Connection event types.
const (
	// EventOpen is delivered when the connection is established.
	EventOpen EventType = iota

	// EventMessage is delivered for each decoded inbound protocol event.
	EventMessage

	// EventClose is delivered when the connection closes, expected or not.
	EventClose

	// EventError is delivered for transport errors.
	EventError

	// EventParseError is delivered for malformed inbound payloads; the
	// payload is dropped and the connection stays open.
	EventParseError

	// EventReconnecting is delivered when a reconnection attempt is scheduled.
	EventReconnecting
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	case EventParseError:
		return "parse_error"
	case EventReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Event is delivered on the manager's event channel.
type Event struct {
	// Type is the event kind.
	Type EventType

	// Message is the decoded protocol event, set for EventMessage.
	Message *protocol.Event

	// Err is set for EventError and EventParseError.
	Err error

	// Timestamp is when the event was produced.
	Timestamp time.Time
}

// Conn is the minimal transport surface the manager needs. It is satisfied
// by *websocket.Conn and by test fakes.
type Conn interface {
	// ReadMessage blocks for the next inbound frame.
	ReadMessage() (messageType int, p []byte, err error)

	// WriteMessage writes one outbound frame.
	WriteMessage(messageType int, data []byte) error

	// Close closes the underlying transport.
	Close() error
}

// Dialer opens a transport to the given URL.
type Dialer func(url string) (Conn, error)

// Manager owns one streaming connection to the backend.
type Manager interface {
	// Connect opens the connection to the given URL.
	//
	// Idempotent: calling Connect while connecting or connected is a no-op.
	// The dial itself happens asynchronously; success is reported as an
	// EventOpen on the event channel, failure as EventError.
	//
	// Returns ErrManagerClosed if the manager has been closed.
	Connect(url string) error

	// Send transmits a command if the connection is open.
	//
	// Sends are fire-and-forget: if the connection is not open the message
	// is dropped with a logged warning. Send never panics and gives no
	// delivery confirmation.
	Send(cmd protocol.Command)

	// Close closes the connection and cancels any pending reconnection.
	// Close is terminal; the manager cannot be reused afterwards.
	Close() error

	// Events returns the channel carrying connection events.
	Events() <-chan Event

	// State returns the current connection state.
	State() State
}

// Config contains connection manager configuration.
type Config struct {
	// Retry is the reconnection policy applied after unexpected closures.
	Retry RetryPolicy

	// ShouldReconnect is consulted after an unexpected closure; reconnection
	// is only scheduled while it returns true (typically: the last known
	// simulation status is running). A nil predicate disables reconnection.
	ShouldReconnect func() bool

	// Dialer opens the transport. Defaults to a WebSocket dialer.
	Dialer Dialer

	// HandshakeTimeout bounds the WebSocket handshake (default: 10s).
	HandshakeTimeout time.Duration

	// EventBuffer is the event channel capacity (default: 64).
	EventBuffer int
}
