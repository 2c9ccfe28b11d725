// Package recovery detects interrupted sessions and restores them from
// persisted state and checkpoints.
//
// Detection is derived, never persisted: a session whose stored status is
// active or paused but which has no live run registered in this process was
// interrupted. Every restore path reports through RecoveryResult instead of
// returning an error across the boundary, so one bad session can never take
// down a recovery sweep.
package recovery

import (
	"time"

	"github.com/evosim/evoclient/pkg/store"
)

// InterruptReason classifies why a session was left behind.
type InterruptReason string

// Interrupt reasons, ordered roughly by confidence of the classification.
const (
	ReasonBrowserClosed InterruptReason = "browser_closed"
	ReasonTabClosed     InterruptReason = "tab_closed"
	ReasonNetworkError  InterruptReason = "network_error"
	ReasonAppCrash      InterruptReason = "app_crash"
	ReasonUnknown       InterruptReason = "unknown"
)

// InterruptedSession describes one detected interruption.
type InterruptedSession struct {
	// SessionID identifies the interrupted session.
	SessionID string

	// Name is the session's user-facing name.
	Name string

	// Reason is the best-effort interruption classification.
	Reason InterruptReason

	// LastActivity is the session's last store mutation time.
	LastActivity time.Time

	// DataIntegrity scores recoverability in [0, 1].
	DataIntegrity float64

	// ActiveSimulations lists the runs that were in flight.
	ActiveSimulations []string
}

// SuggestedAction is the recommended handling for an interrupted session.
type SuggestedAction string

// Suggested actions by integrity band.
const (
	ActionAutoRecover  SuggestedAction = "auto_recover"         // integrity >= 0.9
	ActionManualReview SuggestedAction = "manual_review"        // 0.6 <= integrity < 0.9
	ActionDiscard      SuggestedAction = "discard_with_warning" // integrity < 0.6
)

// Suggestion pairs an interrupted session with its recommended action.
type Suggestion struct {
	Session InterruptedSession
	Action  SuggestedAction
}

// RecoveryType selects the restore source.
type RecoveryType string

// Recovery types.
const (
	// RecoverFromState restores from the persisted per-run snapshots.
	RecoverFromState RecoveryType = "last_state"

	// RecoverFromCheckpoint restores from the newest checkpoint.
	RecoverFromCheckpoint RecoveryType = "latest_checkpoint"
)

// Options controls a recovery attempt.
type Options struct {
	// Type selects the restore source (default: last_state).
	Type RecoveryType

	// ValidateIntegrity scores the session first and records a low score
	// as an issue. Low integrity never aborts the attempt.
	ValidateIntegrity bool

	// CreateBackup snapshots the session into a checkpoint before any
	// mutation.
	CreateBackup bool

	// PreserveSimulations keeps in-flight runs (paused, ready to resume).
	// When false, running and paused runs are marked cancelled.
	PreserveSimulations bool
}

// DefaultOptions is the configuration AutoRecover uses.
func DefaultOptions() Options {
	return Options{
		Type:                RecoverFromState,
		ValidateIntegrity:   true,
		CreateBackup:        true,
		PreserveSimulations: true,
	}
}

// IssueSeverity grades recovery issues.
type IssueSeverity string

// Issue severities.
const (
	SeverityWarning IssueSeverity = "warning"
	SeverityError   IssueSeverity = "error"
)

// Issue records a problem found during recovery that did not abort it.
type Issue struct {
	Severity IssueSeverity
	Detail   string
}

// Metadata summarizes a recovery attempt.
type Metadata struct {
	// RecoveryTime is how long the attempt took.
	RecoveryTime time.Duration

	// DataIntegrity is the integrity score at recovery time, when computed.
	DataIntegrity float64

	// ItemsRecovered counts runs restored with state.
	ItemsRecovered int

	// ItemsLost counts runs whose state could not be restored.
	ItemsLost int
}

// RecoveryResult is the complete outcome of one recovery attempt.
// Failures live in Err; the method boundary never returns an error.
type RecoveryResult struct {
	// Success reports whether the session was restored.
	Success bool

	// SessionID identifies the attempted session.
	SessionID string

	// Session is the restored record on success.
	Session *store.Session

	// Warnings are non-fatal notes for the user.
	Warnings []string

	// Issues are structured problems encountered along the way.
	Issues []Issue

	// Metadata summarizes the attempt.
	Metadata Metadata

	// Err is the terminal failure, if any.
	Err error
}
