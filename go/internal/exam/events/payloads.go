package events

import (
	"time"
)

// Event payload types shared between the exam packages, the outbox relay,
// and the gateway push path.

// Event type names as they appear on the bus.
const (
	TypeWindowOpened        = "WindowOpened"
	TypeWindowClosed        = "WindowClosed"
	TypeSessionStarted      = "SessionStarted"
	TypeSessionSubmitted    = "SessionSubmitted"
	TypeSessionDisqualified = "SessionDisqualified"
	TypeSessionAutoExpired  = "SessionAutoExpired"
)

// WindowOpenedPayload is the payload for a WindowOpened event.
type WindowOpenedPayload struct {
	DriveID         string    `json:"drive_id"`
	OpenedAt        time.Time `json:"opened_at"`
	OpenedBy        string    `json:"opened_by"`
	AutoOpened      bool      `json:"auto_opened"`
	DurationMinutes int       `json:"duration_minutes"`
}

// WindowClosedPayload is the payload for a WindowClosed event.
type WindowClosedPayload struct {
	DriveID  string    `json:"drive_id"`
	ClosedAt time.Time `json:"closed_at"`
	ClosedBy string    `json:"closed_by"`
	Reason   string    `json:"reason"`
	// AutoClosed is true when the sweeper expired the window.
	AutoClosed bool `json:"auto_closed"`
}

// SessionStartedPayload is the payload for a SessionStarted event.
type SessionStartedPayload struct {
	SessionID       string    `json:"session_id"`
	StudentID       string    `json:"student_id"`
	DriveID         string    `json:"drive_id"`
	StartedAt       time.Time `json:"started_at"`
	ExpectedEnd     time.Time `json:"expected_end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// SessionSubmittedPayload is the payload for a SessionSubmitted event.
type SessionSubmittedPayload struct {
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	DriveID     string    `json:"drive_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	Percentage  float64   `json:"percentage"`
}

// SessionDisqualifiedPayload is the payload for a SessionDisqualified event.
type SessionDisqualifiedPayload struct {
	SessionID       string    `json:"session_id"`
	StudentID       string    `json:"student_id"`
	DriveID         string    `json:"drive_id"`
	Kind            string    `json:"violation_kind"`
	Reason          string    `json:"reason"`
	TotalViolations int       `json:"total_violations"`
	DisqualifiedAt  time.Time `json:"disqualified_at"`
}

// SessionAutoExpiredPayload is the payload for a SessionAutoExpired event.
type SessionAutoExpiredPayload struct {
	SessionID   string    `json:"session_id"`
	StudentID   string    `json:"student_id"`
	DriveID     string    `json:"drive_id"`
	ExpectedEnd time.Time `json:"expected_end"`
	ExpiredAt   time.Time `json:"expired_at"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
}
