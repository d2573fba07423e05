package models

import (
	"time"

	"github.com/google/uuid"
)

// Result is the finalized outcome of a session. It is persisted exactly
// once; re-finalizing a session returns the stored row unchanged.
type Result struct {
	SessionID   uuid.UUID `json:"session_id"`
	Score       int       `json:"score"`
	TotalMarks  int       `json:"total_marks"`
	Percentage  float64   `json:"percentage"`
	FinalizedAt time.Time `json:"finalized_at"`
}
