package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evosim/evoclient/pkg/connection"
	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/protocol"
	"github.com/evosim/evoclient/pkg/recovery"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// liveRun bundles the machine and connection pair for one active run.
type liveRun struct {
	sessionID string
	runID     string
	params    protocol.Parameters

	machine *simulation.Machine
	manager connection.Manager

	// startOnce guards the initial start_simulation. Reconnections after
	// that resume the subscription and wait for the next update.
	startOnce sync.Once

	mu        sync.Mutex
	last      simulation.State
	hasLast   bool
	dirty     bool
	saveTimer *time.Timer

	wg sync.WaitGroup
}

// client implements the Client interface.
type client struct {
	store  store.Store
	engine recovery.Engine
	config Config
	logger logger.Logger

	mu     sync.RWMutex
	run    *liveRun
	closed bool

	notifications chan Notification
}

// New creates a client bound to a session store.
//
// Parameters:
//   - cfg: Client configuration
//   - st: Session store
//   - log: Logger instance
//
// Returns:
//   - Configured Client
func New(cfg Config, st store.Store, log logger.Logger) Client {
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = 30 * time.Second
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = 16
	}

	c := &client{
		store:         st,
		config:        cfg,
		logger:        log,
		notifications: make(chan Notification, cfg.NotificationBuffer),
	}
	c.engine = recovery.New(st, c, cfg.Recovery, log)

	return c
}

// StartRun implements Client.StartRun.
func (c *client) StartRun(sessionID string, params protocol.Parameters) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClientClosed
	}
	if c.run != nil {
		return "", ErrRunActive
	}
	if c.config.ServerURL == "" {
		return "", ErrNoServerURL
	}

	session, err := c.store.Get(sessionID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	runID := uuid.NewString()
	sims := append(session.Simulations, store.SimulationReference{
		ID:         runID,
		Parameters: params,
		Status:     simulation.StatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	status := store.SessionActive

	if _, err := c.store.Update(sessionID, store.Patch{
		Status:      &status,
		Simulations: &sims,
	}); err != nil {
		return "", fmt.Errorf("failed to record new run: %w", err)
	}

	if err := c.store.SetCurrent(sessionID); err != nil {
		c.logger.Warn("failed to set current session",
			"session", sessionID,
			"error", err)
	}

	c.appendHistory(sessionID, store.EventSimulationStarted, runID, "")

	run := c.buildRun(sessionID, runID, params, simulation.State{Status: simulation.StatusIdle})
	c.run = run

	if err := c.launch(run); err != nil {
		return "", err
	}

	c.logger.Info("run started",
		"session", sessionID,
		"run", runID,
		"url", c.config.ServerURL)

	return runID, nil
}

// ResumeSession implements Client.ResumeSession.
func (c *client) ResumeSession(sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeSessionLocked(sessionID)
}

// resumeSessionLocked rebuilds a live machine from a run's persisted
// snapshot. Caller holds c.mu.
func (c *client) resumeSessionLocked(sessionID string) (string, error) {
	if c.closed {
		return "", ErrClientClosed
	}
	if c.run != nil {
		return "", ErrRunActive
	}
	if c.config.ServerURL == "" {
		return "", ErrNoServerURL
	}

	session, err := c.store.Get(sessionID)
	if err != nil {
		return "", err
	}

	ref := latestResumable(session)
	if ref == nil {
		return "", ErrNoResumableRun
	}

	// The run comes back paused; the start command issued on connection
	// open resumes it in place.
	snapshot := *ref.State
	snapshot.Status = simulation.StatusPaused
	run := c.buildRun(sessionID, ref.ID, ref.Parameters, snapshot)

	if err := c.store.SetCurrent(sessionID); err != nil {
		c.logger.Warn("failed to set current session",
			"session", sessionID,
			"error", err)
	}
	c.appendHistory(sessionID, store.EventSessionResumed, ref.ID, "")

	c.run = run

	if err := c.launch(run); err != nil {
		return "", err
	}

	c.logger.Info("run resumed from saved state",
		"session", sessionID,
		"run", ref.ID,
		"generation", snapshot.CurrentGeneration)

	return ref.ID, nil
}

// latestResumable picks the most recently updated paused run that has a
// saved snapshot.
func latestResumable(session *store.Session) *store.SimulationReference {
	var pick *store.SimulationReference
	for i := range session.Simulations {
		ref := &session.Simulations[i]
		if ref.Status != simulation.StatusPaused || ref.State == nil {
			continue
		}
		if pick == nil || ref.UpdatedAt.After(pick.UpdatedAt) {
			pick = ref
		}
	}
	return pick
}

// buildRun wires a manager and machine pair for one run, with the machine
// seeded to the given state before its loop starts.
func (c *client) buildRun(sessionID, runID string, params protocol.Parameters, seed simulation.State) *liveRun {
	run := &liveRun{
		sessionID: sessionID,
		runID:     runID,
		params:    params,
	}

	run.manager = connection.New(connection.Config{
		Retry:            c.config.Retry,
		ShouldReconnect:  func() bool { return c.shouldReconnect(run) },
		Dialer:           c.config.Dialer,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}, c.logger)

	run.machine = simulation.NewMachine(simulation.Config{
		Send: run.manager.Send,
		ConnOpen: func() bool {
			return run.manager.State() == connection.StateConnected
		},
	}, c.logger)
	run.machine.Restore(seed, params)

	return run
}

// launch starts the machine loop and pumps and opens the connection.
// Caller holds c.mu and has installed the run as c.run.
func (c *client) launch(run *liveRun) error {
	go run.machine.Run()

	run.wg.Add(2)
	go c.pumpConnection(run)
	go c.pumpUpdates(run)

	if err := run.manager.Connect(c.config.ServerURL); err != nil {
		c.teardown(run)
		c.run = nil
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// shouldReconnect reports whether an unexpected closure warrants retrying.
func (c *client) shouldReconnect(run *liveRun) bool {
	status := run.machine.State().Status
	if status == simulation.StatusRunning {
		return true
	}
	return c.config.ReconnectWhilePaused && status == simulation.StatusPaused
}

// pumpConnection feeds connection events into the run's machine.
func (c *client) pumpConnection(run *liveRun) {
	defer run.wg.Done()

	for ev := range run.manager.Events() {
		switch ev.Type {
		case connection.EventOpen:
			started := false
			run.startOnce.Do(func() {
				run.machine.Start(run.params)
				started = true
			})
			if !started {
				c.logger.Info("reconnected, resuming update stream",
					"run", run.runID)
			}

		case connection.EventMessage:
			run.machine.Deliver(ev.Message)

		case connection.EventParseError:
			c.logger.Warn("dropping malformed server payload",
				"run", run.runID,
				"error", ev.Err)

		case connection.EventError:
			c.logger.Warn("connection error",
				"run", run.runID,
				"error", ev.Err)

		case connection.EventClose:
			// A close during teardown is expected and not worth a
			// notification.
			if c.isCurrent(run) && run.machine.State().Status == simulation.StatusRunning {
				c.notify(Notification{
					Type:         NotifyConnectionLost,
					SessionID:    run.sessionID,
					SimulationID: run.runID,
					Message:      "connection lost during an active run",
				})
			}

		case connection.EventReconnecting:
			c.logger.Info("reconnection scheduled", "run", run.runID)
		}
	}
}

// isCurrent reports whether the run is still the client's live run.
func (c *client) isCurrent(run *liveRun) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run == run
}

// pumpUpdates mirrors machine state into the store and raises terminal
// notifications.
func (c *client) pumpUpdates(run *liveRun) {
	defer run.wg.Done()

	for state := range run.machine.Updates() {
		run.mu.Lock()
		run.last = state
		run.hasLast = true
		run.mu.Unlock()

		switch state.Status {
		case simulation.StatusCompleted:
			c.flushRun(run)
			c.appendHistory(run.sessionID, store.EventSimulationCompleted, run.runID, "")
			c.notify(Notification{
				Type:         NotifySimulationCompleted,
				SessionID:    run.sessionID,
				SimulationID: run.runID,
				Message:      fmt.Sprintf("completed after %d generations", state.CurrentGeneration),
			})

		case simulation.StatusError:
			c.flushRun(run)
			c.appendHistory(run.sessionID, store.EventSimulationFailed, run.runID, state.ErrorMessage)
			c.notify(Notification{
				Type:         NotifySimulationError,
				SessionID:    run.sessionID,
				SimulationID: run.runID,
				Message:      state.ErrorMessage,
			})

		case simulation.StatusCancelled:
			c.flushRun(run)
			c.notify(Notification{
				Type:         NotifySimulationCancelled,
				SessionID:    run.sessionID,
				SimulationID: run.runID,
				Message:      "run cancelled",
			})

		default:
			c.scheduleSave(run)
		}
	}
}

// scheduleSave arms the debounced auto-save. Bursts of updates collapse
// into one store write per interval.
func (c *client) scheduleSave(run *liveRun) {
	run.mu.Lock()
	defer run.mu.Unlock()

	run.dirty = true
	if run.saveTimer != nil {
		return
	}

	interval := c.autoSaveInterval(run.sessionID)
	run.saveTimer = time.AfterFunc(interval, func() {
		run.mu.Lock()
		run.saveTimer = nil
		run.mu.Unlock()

		c.flushRun(run)
	})
}

// autoSaveInterval resolves the session's auto-save period.
func (c *client) autoSaveInterval(sessionID string) time.Duration {
	session, err := c.store.Get(sessionID)
	if err == nil && session.Config.AutoSaveInterval > 0 {
		return session.Config.AutoSaveInterval
	}
	return c.config.AutoSaveInterval
}

// flushRun writes the run's latest state into its session record.
func (c *client) flushRun(run *liveRun) {
	run.mu.Lock()
	if !run.hasLast {
		run.mu.Unlock()
		return
	}
	state := run.last
	run.dirty = false
	run.mu.Unlock()

	session, err := c.store.Get(run.sessionID)
	if err != nil {
		c.logger.Warn("auto-save failed to load session",
			"session", run.sessionID,
			"error", err)
		return
	}

	sims := append([]store.SimulationReference(nil), session.Simulations...)
	found := false
	for i := range sims {
		if sims[i].ID != run.runID {
			continue
		}
		snapshot := state
		sims[i].Status = state.Status
		sims[i].Progress = state.Progress
		sims[i].State = &snapshot
		// A start issued while paused can carry fresh parameters; keep
		// the stored record in step with what the machine is running.
		sims[i].Parameters = run.machine.Parameters()
		sims[i].UpdatedAt = time.Now()
		found = true
		break
	}
	if !found {
		c.logger.Warn("run missing from session during auto-save",
			"session", run.sessionID,
			"run", run.runID)
		return
	}

	if _, err := c.store.Update(run.sessionID, store.Patch{Simulations: &sims}); err != nil {
		c.logger.Warn("auto-save failed",
			"session", run.sessionID,
			"run", run.runID,
			"error", err)
		return
	}

	c.logger.Debug("run state saved",
		"run", run.runID,
		"status", state.Status,
		"progress", state.Progress)
}

// PauseRun implements Client.PauseRun.
func (c *client) PauseRun() error {
	return c.withRun(func(run *liveRun) { run.machine.Pause() })
}

// ResumeRun implements Client.ResumeRun.
func (c *client) ResumeRun() error {
	return c.withRun(func(run *liveRun) { run.machine.Resume() })
}

// CancelRun implements Client.CancelRun.
func (c *client) CancelRun() error {
	return c.withRun(func(run *liveRun) { run.machine.Cancel() })
}

func (c *client) withRun(fn func(*liveRun)) error {
	c.mu.RLock()
	run := c.run
	c.mu.RUnlock()

	if run == nil {
		return ErrNoRun
	}

	fn(run)
	return nil
}

// StopRun implements Client.StopRun.
func (c *client) StopRun() error {
	c.mu.Lock()
	run := c.run
	c.run = nil
	c.mu.Unlock()

	if run == nil {
		return ErrNoRun
	}

	c.teardown(run)
	c.flushRun(run)

	c.logger.Info("run stopped", "run", run.runID)
	return nil
}

// teardown closes the run's machine and connection and waits for the pumps
// to drain.
func (c *client) teardown(run *liveRun) {
	run.mu.Lock()
	if run.saveTimer != nil {
		run.saveTimer.Stop()
		run.saveTimer = nil
	}
	run.mu.Unlock()

	run.machine.Close()
	if err := run.manager.Close(); err != nil {
		c.logger.Warn("failed to close connection", "error", err)
	}

	run.wg.Wait()
}

// RunState implements Client.RunState.
func (c *client) RunState() (simulation.State, bool) {
	c.mu.RLock()
	run := c.run
	c.mu.RUnlock()

	if run == nil {
		return simulation.State{}, false
	}
	return run.machine.State(), true
}

// Updates implements Client.Updates.
func (c *client) Updates() <-chan simulation.State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.run == nil {
		return nil
	}
	return c.run.machine.Updates()
}

// Notifications implements Client.Notifications.
func (c *client) Notifications() <-chan Notification {
	return c.notifications
}

// Recovery implements Client.Recovery.
func (c *client) Recovery() recovery.Engine {
	return c.engine
}

// AutoRecover implements Client.AutoRecover.
func (c *client) AutoRecover() []recovery.RecoveryResult {
	results := c.engine.AutoRecover()

	for _, result := range results {
		if !result.Success {
			continue
		}
		c.notify(Notification{
			Type:      NotifySessionRecovered,
			SessionID: result.SessionID,
			Message: fmt.Sprintf("restored %d runs (%d lost)",
				result.Metadata.ItemsRecovered, result.Metadata.ItemsLost),
		})
	}

	// The first recovered session with a saved snapshot comes back as a
	// live machine; the rest stay recovered-at-rest (one live run per
	// client).
	for _, result := range results {
		if !result.Success {
			continue
		}

		c.mu.Lock()
		runID, err := c.resumeSessionLocked(result.SessionID)
		c.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrRunActive) {
				break
			}
			c.logger.Warn("recovered session left at rest",
				"session", result.SessionID,
				"error", err)
			continue
		}

		c.logger.Info("recovered run brought back live",
			"session", result.SessionID,
			"run", runID)
		break
	}

	return results
}

// IsLive implements recovery.Registry.
func (c *client) IsLive(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.run != nil && c.run.sessionID == sessionID
}

// Close implements Client.Close.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	run := c.run
	c.run = nil
	c.mu.Unlock()

	if run != nil {
		c.teardown(run)
		c.flushRun(run)
	}

	c.mu.Lock()
	close(c.notifications)
	c.mu.Unlock()

	c.logger.Info("client closed")
	return nil
}

// notify delivers a notification without blocking.
func (c *client) notify(n Notification) {
	n.Timestamp = time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	select {
	case c.notifications <- n:
	default:
		c.logger.Warn("notification channel full, dropping notification",
			"type", n.Type)
	}
}

// appendHistory records a history event, logging instead of failing.
func (c *client) appendHistory(sessionID string, eventType store.SessionEventType, runID, detail string) {
	if err := c.store.AppendHistory(store.HistoryEvent{
		SessionID:    sessionID,
		Type:         eventType,
		SimulationID: runID,
		Detail:       detail,
	}); err != nil {
		c.logger.Warn("failed to append history event",
			"session", sessionID,
			"type", eventType,
			"error", err)
	}
}
