package models

import (
	"time"

	"github.com/google/uuid"
)

// WindowState defines the lifecycle state of a drive's exam window.
type WindowState string

const (
	WindowStateDraft    WindowState = "DRAFT"
	WindowStateApproved WindowState = "APPROVED"
	WindowStateOpen     WindowState = "OPEN"
	WindowStateClosed   WindowState = "CLOSED"
)

// DriveWindow is the outer time range during which students may begin an
// attempt. Scheduled bounds are operator-declared; actual bounds are set
// when the window is opened/closed (manually or by the sweeper). All
// downstream time arithmetic for students uses ActualStart, never
// ScheduledStart. A closed window cannot reopen.
type DriveWindow struct {
	DriveID         uuid.UUID   `json:"drive_id"`
	State           WindowState `json:"state"`
	ScheduledStart  time.Time   `json:"scheduled_start"`
	ScheduledEnd    time.Time   `json:"scheduled_end"`
	ActualStart     *time.Time  `json:"actual_start,omitempty"`
	ActualEnd       *time.Time  `json:"actual_end,omitempty"`
	DurationMinutes int         `json:"duration_minutes"`
	OpenedBy        *string     `json:"opened_by,omitempty"`
	ClosedBy        *string     `json:"closed_by,omitempty"`
	CloseReason     *string     `json:"close_reason,omitempty"`
	// AutoOpened records whether ActualStart was set by the scheduler
	// rather than an operator; only such windows are eligible for
	// scheduled-end auto expiry.
	AutoOpened bool      `json:"auto_opened"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsOpen reports whether new sessions may start right now.
func (w *DriveWindow) IsOpen() bool {
	return w.ActualStart != nil && w.ActualEnd == nil
}

// AttemptDuration is the per-student attempt length.
func (w *DriveWindow) AttemptDuration() time.Duration {
	return time.Duration(w.DurationMinutes) * time.Minute
}
