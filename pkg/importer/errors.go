package importer

import "errors"

var (
	// ErrImporterClosed indicates an operation on a closed importer.
	ErrImporterClosed = errors.New("importer is closed")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("importer already started")

	// ErrNoWatchDir indicates no drop directory was configured.
	ErrNoWatchDir = errors.New("no watch directory configured")
)
