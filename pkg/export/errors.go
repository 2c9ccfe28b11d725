package export

import "errors"

var (
	// ErrUnsupportedFormat indicates an unknown export format name.
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrNilSession indicates an export was attempted without a session.
	ErrNilSession = errors.New("nil session")
)
