// Package client orchestrates a simulation run end to end: it owns the
// connection manager and state machine pair for the live run, mirrors
// machine state into the session store behind a debounced auto-save, and
// surfaces lifecycle notifications on a channel.
//
// One client manages at most one live run. The client is also the live-run
// registry the recovery engine consults, so a session with a running
// machine in this process is never reported as interrupted.
package client

import (
	"time"

	"github.com/evosim/evoclient/pkg/connection"
	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/simulation"
)

// NotificationType identifies a client notification.
type NotificationType string

// Notification types.
const (
	NotifySimulationCompleted NotificationType = "simulation_completed"
	NotifySimulationError     NotificationType = "simulation_error"
	NotifySimulationCancelled NotificationType = "simulation_cancelled"
	NotifyConnectionLost      NotificationType = "connection_lost"
	NotifySessionRecovered    NotificationType = "session_recovered"
)

// Notification is a lifecycle event surfaced to the caller.
type Notification struct {
	// Type is the notification kind.
	Type NotificationType

	// SessionID identifies the affected session.
	SessionID string

	// SimulationID identifies the affected run, when applicable.
	SimulationID string

	// Message is a human-readable summary.
	Message string

	// Timestamp is when the notification was produced.
	Timestamp time.Time
}

// Client drives simulation runs against the backend.
type Client interface {
	// StartRun starts a simulation in the given session and returns the
	// new run id. Only one run may be live at a time.
	StartRun(sessionID string, params protocol.Parameters) (string, error)

	// ResumeSession brings a session's paused run back as the live run,
	// reconstructing the state machine from its persisted snapshot. The
	// run resumes against the server on the next connection open.
	ResumeSession(sessionID string) (string, error)

	// PauseRun pauses the live run.
	PauseRun() error

	// ResumeRun resumes the live run.
	ResumeRun() error

	// CancelRun cancels the live run on the server.
	CancelRun() error

	// StopRun tears down the live run's machine and connection after
	// flushing its state to the store.
	StopRun() error

	// RunState returns the live run's current state, and whether a run
	// is live at all.
	RunState() (simulation.State, bool)

	// Updates returns the live run's state stream, or nil when no run
	// is live.
	Updates() <-chan simulation.State

	// Notifications returns the lifecycle notification channel.
	Notifications() <-chan Notification

	// Recovery exposes the recovery engine bound to this client.
	Recovery() recovery.Engine

	// AutoRecover runs unattended recovery and notifies for each
	// restored session.
	AutoRecover() []recovery.RecoveryResult

	// IsLive implements recovery.Registry.
	IsLive(sessionID string) bool

	// Close stops the live run, if any, and releases the client.
	Close() error
}

// Config contains client configuration.
type Config struct {
	// ServerURL is the simulation backend WebSocket URL.
	ServerURL string

	// Retry is the reconnection policy for unexpected closures.
	Retry connection.RetryPolicy

	// ReconnectWhilePaused also reconnects when the run is paused, not
	// just running.
	ReconnectWhilePaused bool

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// Dialer overrides the transport; tests inject fakes here.
	Dialer connection.Dialer

	// AutoSaveInterval is the fallback auto-save period when the session
	// does not configure one (default: 30s).
	AutoSaveInterval time.Duration

	// Recovery configures the embedded recovery engine.
	Recovery recovery.Config

	// NotificationBuffer sizes the notification channel (default: 16).
	NotificationBuffer int
}
