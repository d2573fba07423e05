package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/proctorhq/examengine/go/internal/models"
)

// StartParams carries the fields written when an attempt starts. The
// repository applies them only while the session is unstarted and the
// drive window is still open, in one atomic step.
type StartParams struct {
	SessionID     uuid.UUID
	DriveID       uuid.UUID
	StartedAt     time.Time
	ExpectedEnd   time.Time
	QuestionOrder []uuid.UUID
}

// Status is the per-student point-in-time projection served to polling
// clients. TimeRemaining is whole seconds derived from the stored
// expected_end; the client countdown is display-only.
type Status struct {
	State          models.SessionState `json:"state"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	ExpectedEnd    *time.Time          `json:"expected_end,omitempty"`
	TimeRemaining  int64               `json:"time_remaining"`
	HasSubmitted   bool                `json:"has_submitted"`
	IsDisqualified bool                `json:"is_disqualified"`
}

// SubmitOutcome is what a submit (or idempotent re-submit) returns.
type SubmitOutcome struct {
	Session *models.Session `json:"session"`
	Result  *models.Result  `json:"result,omitempty"`
	// Replayed is true when the session was already terminal and the
	// stored outcome was returned instead of re-scoring.
	Replayed bool `json:"-"`
}

// NextDeadline is the soonest expected_end across in-progress sessions.
type NextDeadline struct {
	SessionID uuid.UUID  `json:"session_id"`
	Deadline  *time.Time `json:"deadline"`
}
