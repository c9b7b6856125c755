package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a turn is issued while another
	// turn is still in flight on the same session.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrCwdRequired is returned when a session creation request is
	// missing the working directory.
	ErrCwdRequired = errors.New("cwd is required")

	// ErrSessionLimit is returned when creating a session would exceed
	// the configured maximum of live sessions.
	ErrSessionLimit = errors.New("maximum active sessions reached")
)
