package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/protocol"
)

// manager implements the Manager interface.
type manager struct {
	config Config
	logger logger.Logger

	mu             sync.RWMutex
	state          State
	conn           Conn
	url            string
	closed         bool
	attempts       int
	reconnectTimer *time.Timer

	events chan Event
}

// New creates a connection manager.
//
// Parameters:
//   - cfg: Manager configuration
//   - log: Logger instance
//
// The returned manager is disconnected; call Connect to open the stream.
func New(cfg Config, log logger.Logger) Manager {
	cfg.Retry = cfg.Retry.withDefaults()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Dialer == nil {
		cfg.Dialer = newWebSocketDialer(cfg.HandshakeTimeout)
	}

	log.Info("connection manager created",
		"reconnect_delay", cfg.Retry.Delay,
		"max_attempts", cfg.Retry.MaxAttempts)

	return &manager{
		config: cfg,
		logger: log,
		state:  StateDisconnected,
		events: make(chan Event, cfg.EventBuffer),
	}
}

// Connect implements Manager.Connect.
func (m *manager) Connect(url string) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	if url == "" {
		url = m.url
	}
	if url == "" {
		m.mu.Unlock()
		return ErrNoURL
	}

	// Idempotent while a connection attempt is in flight or established.
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		m.logger.Debug("connect ignored: already connecting or connected")
		return nil
	}

	m.state = StateConnecting
	m.url = url
	m.mu.Unlock()

	go m.dial(url)
	return nil
}

// dial opens the transport and transitions to connected or error.
func (m *manager) dial(url string) {
	conn, err := m.config.Dialer(url)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		m.state = StateError
		m.mu.Unlock()

		m.logger.Warn("connection failed", "url", url, "error", err)
		m.emit(Event{Type: EventError, Err: err, Timestamp: time.Now()})
		m.scheduleReconnect()
		return
	}

	m.conn = conn
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("connected", "url", url)
	m.emit(Event{Type: EventOpen, Timestamp: time.Now()})

	go m.readLoop(conn)
}

// readLoop decodes inbound frames until the connection closes.
func (m *manager) readLoop(conn Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(err)
			return
		}

		event, decodeErr := protocol.DecodeEvent(raw)
		if decodeErr != nil {
			var parseErr *protocol.ParseError
			if errors.As(decodeErr, &parseErr) {
				m.logger.Warn("dropping malformed payload", "error", parseErr)
				m.emit(Event{Type: EventParseError, Err: parseErr, Timestamp: time.Now()})
				continue
			}
			m.logger.Warn("dropping undecodable payload", "error", decodeErr)
			continue
		}

		if !event.Known() {
			// Forward-compatible: unknown types are logged and ignored.
			m.logger.Debug("ignoring unrecognized event type", "type", event.Type)
			continue
		}

		m.emit(Event{Type: EventMessage, Message: event, Timestamp: time.Now()})
	}
}

// handleClosed reacts to the read loop terminating.
func (m *manager) handleClosed(err error) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	// A requested close never reaches here: Close marks the manager closed
	// before tearing down the transport, so this is always an unexpected loss.
	m.conn = nil
	m.state = StateError
	m.mu.Unlock()

	m.emit(Event{Type: EventClose, Err: err, Timestamp: time.Now()})

	m.logger.Warn("connection lost", "error", err)
	m.scheduleReconnect()
}

// scheduleReconnect arms the retry timer after an unexpected closure.
//
// Reconnection only happens while the caller's predicate reports an active
// run; otherwise the loss is surfaced as a non-fatal disconnected state.
func (m *manager) scheduleReconnect() {
	if m.config.ShouldReconnect == nil || !m.config.ShouldReconnect() {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Debug("not reconnecting: no active run")
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.attempts++
	attempt := m.attempts
	if m.config.Retry.Exhausted(attempt) {
		m.state = StateDisconnected
		m.mu.Unlock()
		m.logger.Error("reconnect attempts exhausted", "attempts", attempt-1)
		return
	}

	delay := m.config.Retry.NextDelay(attempt)
	m.state = StateDisconnected
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.closed || m.state != StateDisconnected {
			m.mu.Unlock()
			return
		}
		m.state = StateConnecting
		url := m.url
		m.mu.Unlock()

		m.logger.Info("reconnecting", "url", url, "attempt", attempt)
		m.dial(url)
	})
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled", "delay", delay, "attempt", attempt)
	m.emit(Event{Type: EventReconnecting, Timestamp: time.Now()})
}

// Send implements Manager.Send.
func (m *manager) Send(cmd protocol.Command) {
	m.mu.RLock()
	state := m.state
	conn := m.conn
	m.mu.RUnlock()

	if state != StateConnected || conn == nil {
		m.logger.Warn("message dropped: connection not open",
			"command", cmd.Type,
			"state", state)
		return
	}

	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		m.logger.Warn("message dropped: encode failed",
			"command", cmd.Type,
			"error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Fire-and-forget: the read loop will observe a broken transport.
		m.logger.Warn("send failed", "command", cmd.Type, "error", err)
	}
}

// Close implements Manager.Close.
func (m *manager) Close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return nil
	}

	m.closed = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected

	// Final close event, then seal the channel. emit() is suppressed once
	// closed is set, so this is the only writer from here on.
	select {
	case m.events <- Event{Type: EventClose, Timestamp: time.Now()}:
	default:
	}
	close(m.events)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("failed to close transport", "error", err)
		}
	}

	m.logger.Info("connection manager closed")
	return nil
}

// Events implements Manager.Events.
func (m *manager) Events() <-chan Event {
	return m.events
}

// State implements Manager.State.
func (m *manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// emit delivers an event without blocking. Events are dropped when the
// buffer is full; consumers that care about every event must keep up.
func (m *manager) emit(event Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.events <- event:
	default:
		m.logger.Warn("event channel full, dropping event", "type", event.Type)
	}
}
