package window

import (
	"time"

	"github.com/google/uuid"
)

// CreateWindowRequest represents a request to create a drive window.
type CreateWindowRequest struct {
	DriveID         uuid.UUID `json:"drive_id"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	ScheduledEnd    time.Time `json:"scheduled_end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// OpenParams carries the fields written when a window opens.
type OpenParams struct {
	DriveID    uuid.UUID
	OpenedAt   time.Time
	Actor      string
	AutoOpened bool
}

// CloseParams carries the fields written when a window closes.
type CloseParams struct {
	DriveID    uuid.UUID
	ClosedAt   time.Time
	Actor      string
	Reason     string
	AutoClosed bool
}

// NextDeadline is the soonest scheduler-relevant instant across all
// windows: a scheduled_start awaiting auto-open or a scheduled_end
// awaiting auto-expiry.
type NextDeadline struct {
	DriveID  uuid.UUID  `json:"drive_id"`
	Deadline *time.Time `json:"deadline"`
}
