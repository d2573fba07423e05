package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState defines the state of one student's timed attempt.
type SessionState string

const (
	SessionStateNotStarted   SessionState = "NOT_STARTED"
	SessionStateInProgress   SessionState = "IN_PROGRESS"
	SessionStateSubmitted    SessionState = "SUBMITTED"
	SessionStateDisqualified SessionState = "DISQUALIFIED"
	SessionStateAutoExpired  SessionState = "AUTO_EXPIRED"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateSubmitted, SessionStateDisqualified, SessionStateAutoExpired:
		return true
	}
	return false
}

// Session is one student's individual timed attempt within a drive.
// One session exists per (student, drive). StartedAt is set at most once;
// ExpectedEnd is computed once at start and never recomputed, so client
// reconnects cannot extend or truncate the attempt. SubmittedAt and
// IsDisqualified are mutually exclusive terminal markers.
type Session struct {
	ID        uuid.UUID    `json:"id"`
	StudentID uuid.UUID    `json:"student_id"`
	DriveID   uuid.UUID    `json:"drive_id"`
	State     SessionState `json:"state"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	ExpectedEnd *time.Time `json:"expected_end,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`

	// QuestionOrder is the randomized per-student question sequence,
	// generated at start and immutable afterwards.
	QuestionOrder []uuid.UUID `json:"question_order,omitempty"`

	IsDisqualified         bool    `json:"is_disqualified"`
	DisqualificationReason *string `json:"disqualification_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Started reports whether the attempt clock has ever been started.
func (s *Session) Started() bool {
	return s.StartedAt != nil
}

// Expired reports whether the attempt has run past its own deadline.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpectedEnd != nil && !now.Before(*s.ExpectedEnd)
}

// TimeRemaining derives remaining attempt time from the stored
// ExpectedEnd, clamped at zero.
func (s *Session) TimeRemaining(now time.Time) time.Duration {
	if s.ExpectedEnd == nil {
		return 0
	}
	rem := s.ExpectedEnd.Sub(now)
	if rem < 0 {
		return 0
	}
	return rem
}

// Answer is one entry of a session's frozen answer set.
type Answer struct {
	QuestionID      uuid.UUID `json:"question_id"`
	SelectedOption  *string   `json:"selected_option,omitempty"`
	MarkedForReview bool      `json:"marked_for_review"`
}
