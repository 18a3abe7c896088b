package relay

import "errors"

// Request errors. Each is reported to the originating connection only.
var (
	ErrInvalidName       = errors.New("display name must be 1-20 characters")
	ErrNotJoined         = errors.New("connection has not joined")
	ErrAlreadyJoined     = errors.New("connection already joined")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionExists  = errors.New("connection already registered")
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrMessageTooLong    = errors.New("message exceeds 1000 characters")
)

// ErrRelayStopped is returned by every Relay method once Run has returned.
var ErrRelayStopped = errors.New("relay stopped")
