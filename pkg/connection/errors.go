package connection

import "errors"

// Common errors returned by the connection manager.
var (
	// ErrManagerClosed is returned when using a closed manager.
	ErrManagerClosed = errors.New("connection manager is closed")

	// ErrNoURL is returned when Connect is called with an empty URL.
	ErrNoURL = errors.New("no connection URL specified")
)
