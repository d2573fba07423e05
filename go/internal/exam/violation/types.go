package violation

import (
	"github.com/proctorhq/examengine/go/internal/models"
)

// OutcomeKind tags the result of recording one violation.
type OutcomeKind string

const (
	// OutcomeWarned means the violation was counted but the session
	// continues; Remaining tells the client how many attempts are left
	// before disqualification (nil for unbounded kinds).
	OutcomeWarned OutcomeKind = "WARNED"
	// OutcomeDisqualified means this violation crossed the threshold
	// and terminated the session.
	OutcomeDisqualified OutcomeKind = "DISQUALIFIED"
	// OutcomeIgnored means the session was already terminal; nothing
	// was counted or re-reported.
	OutcomeIgnored OutcomeKind = "IGNORED"
)

// Outcome is the full result of a Record call, shaped for client
// display: the per-kind counts map and total mirror what the warning UI
// shows between polls.
type Outcome struct {
	Kind              OutcomeKind            `json:"outcome"`
	ViolationKind     models.ViolationKind   `json:"violation_kind"`
	Count             int                    `json:"count"`
	Remaining         *int                   `json:"remaining,omitempty"`
	IsDisqualified    bool                   `json:"is_disqualified"`
	Reason            *string                `json:"disqualification_reason,omitempty"`
	CurrentViolations models.ViolationCounts `json:"current_violations"`
	TotalViolations   int                    `json:"total_violations"`
}
