package recovery

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evosim/evoclient/pkg/logger"
	"github.com/evosim/evoclient/pkg/simulation"
	"github.com/evosim/evoclient/pkg/store"
)

// Registry reports which sessions have a live run in this process.
// The client orchestrator implements it; tests inject fakes.
type Registry interface {
	// IsLive reports whether a run for the session is currently managed
	// by a running machine.
	IsLive(sessionID string) bool
}

// Engine detects and recovers interrupted sessions.
type Engine interface {
	// CheckForInterrupted scans the store for sessions whose persisted
	// status says in-progress but which have no live run.
	CheckForInterrupted() ([]InterruptedSession, error)

	// Suggestions maps each interrupted session to a recommended action
	// by integrity band.
	Suggestions() ([]Suggestion, error)

	// RecoverSession restores one session. All failures are reported in
	// the result; the method itself never fails.
	RecoverSession(sessionID string, opts Options) RecoveryResult

	// AutoRecover recovers every interrupted session whose integrity
	// clears the auto_recover band. One failed session never aborts the
	// others.
	AutoRecover() []RecoveryResult

	// CreateCheckpoint snapshots a session and its run states.
	CreateCheckpoint(sessionID string) (*store.Checkpoint, error)

	// RestoreFromCheckpoint replaces a session's record with a checkpoint
	// snapshot.
	RestoreFromCheckpoint(sessionID, checkpointID string) RecoveryResult
}

// Config contains recovery engine configuration.
type Config struct {
	// MaxSessionAge bounds the recency component of the integrity score.
	MaxSessionAge time.Duration

	// MinIntegrity is the floor below which a validated recovery records
	// an integrity issue.
	MinIntegrity float64

	// AutoRecoverThreshold is the integrity band for unattended recovery
	// (default: 0.9).
	AutoRecoverThreshold float64

	// ManualReviewThreshold is the integrity band for prompted recovery
	// (default: 0.6).
	ManualReviewThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxSessionAge <= 0 {
		c.MaxSessionAge = store.DefaultGlobalConfig().MaxSessionAge
	}
	if c.AutoRecoverThreshold == 0 {
		c.AutoRecoverThreshold = 0.9
	}
	if c.ManualReviewThreshold == 0 {
		c.ManualReviewThreshold = 0.6
	}
	if c.MinIntegrity == 0 {
		c.MinIntegrity = c.ManualReviewThreshold
	}
	return c
}

// engine implements Engine on top of the session store.
type engine struct {
	store    store.Store
	registry Registry
	config   Config
	logger   logger.Logger
	now      func() time.Time
}

// New creates a recovery engine.
//
// Parameters:
//   - st: session store
//   - registry: live-run registry
//   - cfg: engine configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Engine
func New(st store.Store, registry Registry, cfg Config, log logger.Logger) Engine {
	return &engine{
		store:    st,
		registry: registry,
		config:   cfg.withDefaults(),
		logger:   log,
		now:      time.Now,
	}
}

// CheckForInterrupted implements Engine.CheckForInterrupted.
func (e *engine) CheckForInterrupted() ([]InterruptedSession, error) {
	sessions, err := e.store.List(store.Filter{
		Statuses: []store.SessionStatus{store.SessionActive, store.SessionPaused},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for interrupted sessions: %w", err)
	}

	interrupted := make([]InterruptedSession, 0, len(sessions))
	for _, session := range sessions {
		if e.registry.IsLive(session.ID) {
			continue
		}

		checkpoints, cpErr := e.store.ListCheckpoints(session.ID)
		if cpErr != nil {
			e.logger.Warn("failed to load checkpoints during scan",
				"session", session.ID,
				"error", cpErr)
		}

		interrupted = append(interrupted, InterruptedSession{
			SessionID:         session.ID,
			Name:              session.Name,
			Reason:            classifyReason(session),
			LastActivity:      session.UpdatedAt,
			DataIntegrity:     dataIntegrity(session, checkpoints, e.now(), e.config.MaxSessionAge),
			ActiveSimulations: activeRuns(session),
		})
	}

	if len(interrupted) > 0 {
		e.logger.Info("interrupted sessions detected", "count", len(interrupted))
	}

	return interrupted, nil
}

// Suggestions implements Engine.Suggestions.
func (e *engine) Suggestions() ([]Suggestion, error) {
	interrupted, err := e.CheckForInterrupted()
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(interrupted))
	for _, is := range interrupted {
		action := ActionDiscard
		switch {
		case is.DataIntegrity >= e.config.AutoRecoverThreshold:
			action = ActionAutoRecover
		case is.DataIntegrity >= e.config.ManualReviewThreshold:
			action = ActionManualReview
		}
		suggestions = append(suggestions, Suggestion{Session: is, Action: action})
	}

	return suggestions, nil
}

// RecoverSession implements Engine.RecoverSession.
func (e *engine) RecoverSession(sessionID string, opts Options) RecoveryResult {
	started := e.now()
	result := RecoveryResult{SessionID: sessionID}

	defer func() {
		result.Metadata.RecoveryTime = e.now().Sub(started)
	}()

	if opts.Type == "" {
		opts.Type = RecoverFromState
	}

	session, err := e.store.Get(sessionID)
	if err != nil {
		result.Err = &RecoveryError{SessionID: sessionID, Stage: "load", Err: err}
		return result
	}

	if opts.ValidateIntegrity {
		checkpoints, cpErr := e.store.ListCheckpoints(sessionID)
		if cpErr != nil {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Detail:   fmt.Sprintf("checkpoints unreadable: %v", cpErr),
			})
		}

		integrity := dataIntegrity(session, checkpoints, e.now(), e.config.MaxSessionAge)
		result.Metadata.DataIntegrity = integrity

		if integrity < e.config.MinIntegrity {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityWarning,
				Detail:   fmt.Sprintf("data integrity %.2f below floor %.2f", integrity, e.config.MinIntegrity),
			})
			result.Warnings = append(result.Warnings, "recovered data may be incomplete")
		}
	}

	if opts.CreateBackup {
		if _, err := e.CreateCheckpoint(sessionID); err != nil {
			result.Err = &RecoveryError{SessionID: sessionID, Stage: "backup", Err: err}
			return result
		}
	}

	if opts.Type == RecoverFromCheckpoint {
		return e.restoreLatestCheckpoint(session, result)
	}

	return e.restoreFromState(session, opts, result)
}

// restoreFromState rebuilds the session from the per-run snapshots persisted
// by auto-save.
func (e *engine) restoreFromState(session *store.Session, opts Options, result RecoveryResult) RecoveryResult {
	restored := session.Clone()
	restored.Status = store.SessionActive

	for i := range restored.Simulations {
		ref := &restored.Simulations[i]

		switch ref.Status {
		case simulation.StatusRunning, simulation.StatusPaused:
		default:
			continue
		}

		if !opts.PreserveSimulations {
			ref.Status = simulation.StatusCancelled
			if ref.State != nil {
				ref.State.Status = simulation.StatusCancelled
			}
			continue
		}

		if ref.State == nil {
			// Nothing to resume from. The run is lost, the session is not.
			ref.Status = simulation.StatusError
			result.Metadata.ItemsLost++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("run %s had no saved state and was not restored", ref.ID))
			continue
		}

		// Interrupted runs come back paused so the user decides when to
		// resume against the server.
		ref.Status = simulation.StatusPaused
		ref.State.Status = simulation.StatusPaused
		result.Metadata.ItemsRecovered++
	}

	return e.persistRecovered(restored, result)
}

// restoreLatestCheckpoint rebuilds the session from its newest checkpoint.
func (e *engine) restoreLatestCheckpoint(session *store.Session, result RecoveryResult) RecoveryResult {
	checkpoints, err := e.store.ListCheckpoints(session.ID)
	if err != nil {
		result.Err = &RecoveryError{SessionID: session.ID, Stage: "restore", Err: err}
		return result
	}
	if len(checkpoints) == 0 {
		result.Err = &RecoveryError{SessionID: session.ID, Stage: "restore", Err: store.ErrCheckpointNotFound}
		return result
	}

	return e.applyCheckpoint(session.ID, checkpoints[len(checkpoints)-1], result)
}

// applyCheckpoint materializes a checkpoint snapshot as the session record.
func (e *engine) applyCheckpoint(sessionID string, cp *store.Checkpoint, result RecoveryResult) RecoveryResult {
	if cp.Session == nil {
		result.Err = &RecoveryError{SessionID: sessionID, Stage: "restore",
			Err: fmt.Errorf("checkpoint %s has no session snapshot", cp.ID)}
		return result
	}

	restored := cp.Session.Clone()
	restored.Status = store.SessionActive

	for i := range restored.Simulations {
		ref := &restored.Simulations[i]
		if state, ok := cp.States[ref.ID]; ok {
			copied := state
			if copied.Status == simulation.StatusRunning {
				copied.Status = simulation.StatusPaused
				ref.Status = simulation.StatusPaused
			}
			ref.State = &copied
			result.Metadata.ItemsRecovered++
		}
	}

	return e.persistRecovered(restored, result)
}

// persistRecovered writes the restored record back and finalizes the result.
func (e *engine) persistRecovered(restored *store.Session, result RecoveryResult) RecoveryResult {
	status := restored.Status
	updated, err := e.store.Update(restored.ID, store.Patch{
		Status:      &status,
		Simulations: &restored.Simulations,
	})
	if err != nil {
		result.Err = &RecoveryError{SessionID: restored.ID, Stage: "persist", Err: err}
		return result
	}

	if err := e.store.AppendHistory(store.HistoryEvent{
		SessionID: restored.ID,
		Type:      store.EventSessionRecovered,
		Detail:    fmt.Sprintf("recovered %d runs, lost %d", result.Metadata.ItemsRecovered, result.Metadata.ItemsLost),
	}); err != nil {
		e.logger.Warn("failed to record recovery in history",
			"session", restored.ID,
			"error", err)
	}

	e.logger.Info("session recovered",
		"session", restored.ID,
		"recovered", result.Metadata.ItemsRecovered,
		"lost", result.Metadata.ItemsLost)

	result.Success = true
	result.Session = updated
	return result
}

// AutoRecover implements Engine.AutoRecover.
func (e *engine) AutoRecover() []RecoveryResult {
	suggestions, err := e.Suggestions()
	if err != nil {
		return []RecoveryResult{{
			Err: &RecoveryError{Stage: "load", Err: err},
		}}
	}

	var results []RecoveryResult
	for _, s := range suggestions {
		if s.Action != ActionAutoRecover {
			e.logger.Debug("skipping session below auto-recover band",
				"session", s.Session.SessionID,
				"integrity", s.Session.DataIntegrity)
			continue
		}

		result := e.RecoverSession(s.Session.SessionID, DefaultOptions())
		if result.Err != nil {
			e.logger.Warn("auto-recovery failed for session",
				"session", s.Session.SessionID,
				"error", result.Err)
		}
		results = append(results, result)
	}

	return results
}

// CreateCheckpoint implements Engine.CreateCheckpoint.
func (e *engine) CreateCheckpoint(sessionID string) (*store.Checkpoint, error) {
	session, err := e.store.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session for checkpoint: %w", err)
	}

	states := make(map[string]simulation.State, len(session.Simulations))
	for i := range session.Simulations {
		if st := session.Simulations[i].State; st != nil {
			states[session.Simulations[i].ID] = *st
		}
	}

	cp := &store.Checkpoint{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: e.now(),
		Session:   session.Clone(),
		States:    states,
	}

	if err := e.store.PutCheckpoint(cp); err != nil {
		return nil, err
	}

	if err := e.store.AppendHistory(store.HistoryEvent{
		SessionID: sessionID,
		Type:      store.EventCheckpointCreated,
		Detail:    cp.ID,
	}); err != nil {
		e.logger.Warn("failed to record checkpoint in history",
			"session", sessionID,
			"error", err)
	}

	return cp, nil
}

// RestoreFromCheckpoint implements Engine.RestoreFromCheckpoint.
func (e *engine) RestoreFromCheckpoint(sessionID, checkpointID string) RecoveryResult {
	started := e.now()
	result := RecoveryResult{SessionID: sessionID}

	cp, err := e.store.GetCheckpoint(sessionID, checkpointID)
	if err != nil {
		result.Err = &RecoveryError{SessionID: sessionID, Stage: "load", Err: err}
		result.Metadata.RecoveryTime = e.now().Sub(started)
		return result
	}

	result = e.applyCheckpoint(sessionID, cp, result)
	result.Metadata.RecoveryTime = e.now().Sub(started)
	return result
}

// classifyReason infers why the session was interrupted from what was left
// behind. Browser and tab reasons only apply to imported records that carry
// them; local detection can tell a mid-run crash from an idle abandonment.
func classifyReason(session *store.Session) InterruptReason {
	for i := range session.Simulations {
		ref := &session.Simulations[i]
		if ref.State != nil && ref.State.ErrorMessage != "" {
			return ReasonNetworkError
		}
		if ref.Status == simulation.StatusRunning {
			return ReasonAppCrash
		}
	}
	return ReasonUnknown
}

// activeRuns lists the ids of in-flight runs.
func activeRuns(session *store.Session) []string {
	var ids []string
	for i := range session.Simulations {
		switch session.Simulations[i].Status {
		case simulation.StatusRunning, simulation.StatusPaused:
			ids = append(ids, session.Simulations[i].ID)
		}
	}
	return ids
}
