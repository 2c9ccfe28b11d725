package protocol

import (
	"errors"
	"fmt"
)

// Common errors returned by the protocol package.
var (
	// ErrInvalidPopulation is returned for a non-positive population size.
	ErrInvalidPopulation = errors.New("initial population size must be > 0")

	// ErrInvalidGenerations is returned for a non-positive generation count.
	ErrInvalidGenerations = errors.New("number of generations must be > 0")

	// ErrInvalidMutationRate is returned for a mutation rate outside [0, 1].
	ErrInvalidMutationRate = errors.New("mutation rate must be in [0, 1]")

	// ErrInvalidConcentration is returned for a concentration outside [0, 1].
	ErrInvalidConcentration = errors.New("antibiotic concentration must be in [0, 1]")

	// ErrEmptyPayload is returned when an inbound frame is empty.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrMissingType is returned when an inbound frame has no type field.
	ErrMissingType = errors.New("missing event type")
)

// maxRawInError bounds how much of a malformed payload is kept for logging.
const maxRawInError = 256

// ParseError describes a malformed inbound payload. The payload is dropped
// and the connection stays open; the error exists for logging and metrics.
type ParseError struct {
	// Raw is the offending payload, truncated to a loggable size.
	Raw []byte

	// Err is the underlying decode error.
	Err error
}

// newParseError builds a ParseError with a truncated payload copy.
func newParseError(raw []byte, err error) *ParseError {
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError]
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &ParseError{Raw: buf, Err: err}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
