package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one undelivered (or delivered) event row. Events are
// written in the same transaction as the state change they describe and
// relayed to the bus by the worker.
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	DriveID   uuid.UUID       `json:"drive_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
