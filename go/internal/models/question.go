package models

import (
	"github.com/google/uuid"
)

// Question is one multiple-choice question of a drive. The answer-key
// store is read-only to the engine; CorrectOption never leaves the
// scoring path.
type Question struct {
	ID            uuid.UUID `json:"id"`
	DriveID       uuid.UUID `json:"drive_id"`
	Text          string    `json:"question_text"`
	OptionA       string    `json:"option_a"`
	OptionB       string    `json:"option_b"`
	OptionC       string    `json:"option_c"`
	OptionD       string    `json:"option_d"`
	CorrectOption string    `json:"-"`
	Points        int       `json:"points"`
}
