package session

import "errors"

var (
	// ErrSessionNotFound means no session exists for the student/drive.
	ErrSessionNotFound = errors.New("session not found")

	// ErrWindowClosed means the drive window has ended and the student
	// never started; a student who never began cannot begin after
	// closure.
	ErrWindowClosed = errors.New("exam window has closed; no new attempts can be started")

	// ErrWindowNotOpen means the drive window has not been opened yet.
	ErrWindowNotOpen = errors.New("exam window has not opened yet")

	// ErrNotStarted means the operation requires a started attempt.
	ErrNotStarted = errors.New("exam has not been started")

	// ErrNoQuestions means the drive has no questions configured, so an
	// attempt cannot start.
	ErrNoQuestions = errors.New("no questions configured for drive")

	// ErrStaleTransition is returned by the repository when a
	// conditional state update matched no row: the session moved on
	// under a concurrent writer. Callers re-read and apply the
	// idempotency rules.
	ErrStaleTransition = errors.New("session not in expected state")
)
