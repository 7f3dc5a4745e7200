package session

import "errors"

var (
	// ErrNoSession indicates no session has been installed yet.
	ErrNoSession = errors.New("session: no active session")

	// ErrInvalidSession indicates a session value with missing or
	// inconsistent fields.
	ErrInvalidSession = errors.New("session: invalid session")

	// ErrClosed indicates the manager was closed.
	ErrClosed = errors.New("session: manager closed")
)
