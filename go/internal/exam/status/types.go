package status

import (
	"time"

	"github.com/proctorhq/examengine/go/internal/models"
)

// ExamState is the coarse drive-level phase shown to operators.
type ExamState string

const (
	ExamStateNotStarted ExamState = "not_started"
	ExamStateOngoing    ExamState = "ongoing"
	ExamStateEnded      ExamState = "ended"
)

// ExamStatus is the operator-facing reconciliation payload for one
// drive. All timestamps serialize as UTC ISO-8601; time_remaining is
// whole seconds against the window's scheduled end.
type ExamStatus struct {
	DriveID              string     `json:"drive_id"`
	ExamState            ExamState  `json:"exam_state"`
	ScheduledStart       string     `json:"scheduled_start"`
	ScheduledEnd         string     `json:"scheduled_end"`
	ActualStart          *string    `json:"actual_start,omitempty"`
	ActualEnd            *string    `json:"actual_end,omitempty"`
	DurationMinutes      int        `json:"duration_minutes"`
	TimeRemaining        int64      `json:"time_remaining"`
	TimeRemainingMinutes int64      `json:"time_remaining_minutes"`
	CanStart             bool       `json:"can_start"`
	CanEnd               bool       `json:"can_end"`
	HasStudents          bool       `json:"has_students"`
	StudentCount         int        `json:"student_count"`
	// ShouldAutoEnd prompts the operator once an open window passes its
	// scheduled end. The sweeper only acts on auto-opened windows, so for
	// manually opened ones this flag is a nudge, not a promise.
	ShouldAutoEnd bool       `json:"should_auto_end"`
	GeneratedAt   time.Time  `json:"generated_at"`
	StateCounts   StateTally `json:"session_states"`
}

// StateTally breaks the drive's sessions down by state.
type StateTally struct {
	NotStarted   int `json:"not_started"`
	InProgress   int `json:"in_progress"`
	Submitted    int `json:"submitted"`
	Disqualified int `json:"disqualified"`
	AutoExpired  int `json:"auto_expired"`
}

// StudentStatus is the student-facing view of one attempt.
type StudentStatus struct {
	SessionID              string              `json:"session_id"`
	State                  models.SessionState `json:"state"`
	StartedAt              *string             `json:"started_at,omitempty"`
	ExpectedEnd            *string             `json:"expected_end,omitempty"`
	TimeRemaining          int64               `json:"time_remaining"`
	HasSubmitted           bool                `json:"has_submitted"`
	IsDisqualified         bool                `json:"is_disqualified"`
	DisqualificationReason *string             `json:"disqualification_reason,omitempty"`
}
