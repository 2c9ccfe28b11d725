package simulation

import (
	"sync"
	"time"

	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/protocol"
)

// Machine runs the simulation state machine as a single-goroutine actor.
//
// All inputs (commands, server events, ticks) flow through one mailbox and
// are applied in arrival order, matching the transport's delivery order.
type Machine struct {
	config Config
	logger logger.Logger

	mailbox chan event
	stopped chan struct{}

	mu      sync.RWMutex
	state   State
	params  protocol.Parameters
	closed  bool
	updates chan State
}

// NewMachine creates a simulation state machine in StatusIdle.
//
// Call Run (usually in a goroutine) to start processing, and Close to stop.
func NewMachine(cfg Config, log logger.Logger) *Machine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 16
	}

	return &Machine{
		config:  cfg,
		logger:  log,
		mailbox: make(chan event, 32),
		stopped: make(chan struct{}),
		state:   State{Status: StatusIdle},
		updates: make(chan State, cfg.UpdateBuffer),
	}
}

// Run processes the mailbox until Close is called.
//
// Note: this method blocks; run it in its own goroutine.
func (m *Machine) Run() {
	var ticker *time.Ticker
	var tickC <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-m.stopped:
			return

		case now := <-tickC:
			m.step(event{isTick: true, now: now})

		case ev, ok := <-m.mailbox:
			if !ok {
				return
			}

			effects := m.step(ev)
			for _, eff := range effects {
				switch eff.kind {
				case effectStartTicker:
					stopTicker()
					ticker = time.NewTicker(m.config.TickInterval)
					tickC = ticker.C
				case effectStopTicker:
					stopTicker()
				}
			}
		}
	}
}

// step applies one event and executes its non-timer effects.
// Timer effects are returned for the loop, which owns the ticker.
func (m *Machine) step(ev event) []effect {
	m.mu.RLock()
	state := m.state
	params := m.params
	m.mu.RUnlock()

	ctx := applyContext{
		now:      time.Now(),
		connOpen: m.connOpen(),
		params:   params,
	}
	if ev.isTick {
		ctx.now = ev.now
	}

	next, effects := apply(state, ev, ctx)

	changed := next != state
	m.mu.Lock()
	m.state = next
	if ev.isCommand && ev.command == cmdStart {
		m.params = ev.params
	}
	m.mu.Unlock()

	var timerEffects []effect
	for _, eff := range effects {
		switch eff.kind {
		case effectSend:
			if m.config.Send != nil {
				m.config.Send(eff.cmd)
			}
		case effectRejected:
			m.logger.Warn(eff.note, "status", state.Status)
		default:
			timerEffects = append(timerEffects, eff)
		}
	}

	if changed {
		m.publish(next)
	}

	return timerEffects
}

// connOpen evaluates the injected connection predicate.
func (m *Machine) connOpen() bool {
	if m.config.ConnOpen == nil {
		return true
	}
	return m.config.ConnOpen()
}

// publish delivers a state snapshot without blocking.
func (m *Machine) publish(state State) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.updates <- state:
	default:
		m.logger.Warn("updates channel full, dropping state update")
	}
}

// enqueue posts an event to the mailbox unless the machine has stopped.
func (m *Machine) enqueue(ev event) {
	select {
	case m.mailbox <- ev:
	case <-m.stopped:
	}
}

// Start begins a new run with the given parameters.
//
// Accepted from idle, cancelled, error, and completed; counters are reset
// and a start_simulation command is sent.
func (m *Machine) Start(params protocol.Parameters) {
	m.enqueue(event{isCommand: true, command: cmdStart, params: params})
}

// Pause suspends the running simulation. No-op (logged) if the run is not
// running or the connection is not open.
func (m *Machine) Pause() {
	m.enqueue(event{isCommand: true, command: cmdPause})
}

// Resume continues a paused simulation.
func (m *Machine) Resume() {
	m.enqueue(event{isCommand: true, command: cmdResume})
}

// Cancel aborts the active run. The local transition is immediate and
// authoritative; later contradicting server events are ignored.
func (m *Machine) Cancel() {
	m.enqueue(event{isCommand: true, command: cmdCancel})
}

// Deliver feeds a decoded server event into the mailbox.
func (m *Machine) Deliver(server *protocol.Event) {
	if server == nil {
		return
	}
	m.enqueue(event{server: server})
}

// State returns the current state snapshot.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Parameters returns the parameters of the current run.
func (m *Machine) Parameters() protocol.Parameters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// Updates returns the channel carrying state snapshots after each change.
func (m *Machine) Updates() <-chan State {
	return m.updates
}

// Restore replaces the machine state and run parameters from a persisted
// snapshot.
//
// Used to reconstruct an interrupted run before the loop starts; not
// intended for use while Run is processing events.
func (m *Machine) Restore(state State, params protocol.Parameters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.params = params
}

// Close stops the machine. Safe to call more than once.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.stopped)
	close(m.updates)
}
