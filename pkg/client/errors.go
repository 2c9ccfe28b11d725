package client

import "errors"

var (
	// ErrRunActive indicates StartRun was called while a run is live.
	ErrRunActive = errors.New("a simulation run is already active")

	// ErrNoRun indicates a run operation with no live run.
	ErrNoRun = errors.New("no active simulation run")

	// ErrClientClosed indicates an operation on a closed client.
	ErrClientClosed = errors.New("client is closed")

	// ErrNoServerURL indicates no backend URL was configured.
	ErrNoServerURL = errors.New("no server url configured")

	// ErrNoResumableRun indicates ResumeSession found no paused run with
	// a saved snapshot.
	ErrNoResumableRun = errors.New("no resumable run in session")
)
