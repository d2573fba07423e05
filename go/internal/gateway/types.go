package gateway

import (
	"time"

	"github.com/proctorhq/examengine/go/internal/models"
)

// Request bodies. Validation tags are enforced before any app call.

type createWindowRequest struct {
	DriveID         string    `json:"drive_id" validate:"required,uuid4"`
	ScheduledStart  time.Time `json:"scheduled_start" validate:"required"`
	ScheduledEnd    time.Time `json:"scheduled_end" validate:"required,gtfield=ScheduledStart"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
}

type openWindowRequest struct {
	Actor string `json:"actor" validate:"required"`
}

type closeWindowRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type submitRequest struct {
	Answers []answerPayload `json:"answers" validate:"dive"`
}

type answerPayload struct {
	QuestionID      string  `json:"question_id" validate:"required,uuid4"`
	SelectedOption  *string `json:"selected_option,omitempty" validate:"omitempty,oneof=a b c d A B C D"`
	MarkedForReview bool    `json:"marked_for_review"`
}

type recordViolationRequest struct {
	Kind string `json:"violation_type" validate:"required"`
}

// Response bodies.

type questionsResponse struct {
	Questions       []models.Question `json:"questions"`
	ExamStartedAt   string            `json:"exam_started_at"`
	ExpectedEnd     string            `json:"expected_end"`
	DurationMinutes int               `json:"duration_minutes"`
}

type resultResponse struct {
	SessionID              string                 `json:"session_id"`
	Score                  int                    `json:"score"`
	TotalMarks             int                    `json:"total_marks"`
	Percentage             float64                `json:"percentage"`
	SubmittedAt            *string                `json:"submitted_at,omitempty"`
	IsDisqualified         bool                   `json:"is_disqualified"`
	DisqualificationReason *string                `json:"disqualification_reason,omitempty"`
	TotalViolations        int                    `json:"total_violations"`
	ViolationDetails       models.ViolationCounts `json:"violation_details"`
}

type errorResponse struct {
	Error string `json:"error"`
}
