package recovery

import "fmt"

// RecoveryError wraps a failure inside a recovery attempt with the session
// and stage it happened in. It only ever appears in RecoveryResult.Err.
type RecoveryError struct {
	// SessionID is the session being recovered.
	SessionID string

	// Stage names the step that failed (load, backup, restore, persist).
	Stage string

	// Err is the underlying failure.
	Err error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery of session %s failed at %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}
