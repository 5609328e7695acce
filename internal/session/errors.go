package session

import "errors"

// Precondition failures. They are returned before any network call.
var (
	ErrNoSession     = errors.New("no video session")
	ErrNoTarget      = errors.New("no subject selected")
	ErrNoFrame       = errors.New("no frame displayed")
	ErrBusy          = errors.New("another operation is in progress")
	ErrPlaying       = errors.New("not available during playback")
	ErrSessionActive = errors.New("a video session is already active")
)

var (
	// ErrSessionClosed is returned by an operation whose session was torn
	// down while its request was in flight. The response was discarded.
	ErrSessionClosed = errors.New("session closed")

	// ErrResetRejected is returned when the service answers a reset with
	// ok=false.
	ErrResetRejected = errors.New("target reset rejected")
)
