package window

import "errors"

var (
	// ErrWindowNotFound means no window exists for the drive.
	ErrWindowNotFound = errors.New("drive window not found")

	// ErrNotApproved means the drive has not been approved, so its
	// window cannot be opened.
	ErrNotApproved = errors.New("drive is not approved")

	// ErrAlreadyOpen means actual_start is already set.
	ErrAlreadyOpen = errors.New("exam window has already been started")

	// ErrNotOpen means the window was never opened or is already closed.
	ErrNotOpen = errors.New("exam window is not open")

	// ErrInvalidWindowBounds means the scheduled bounds or per-student
	// duration are inconsistent.
	ErrInvalidWindowBounds = errors.New("invalid window bounds")
)
