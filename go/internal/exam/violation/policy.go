package violation

import (
	"errors"
	"fmt"

	"github.com/proctorhq/examengine/go/internal/models"
)

// ErrInvalidThresholdConfig means a violation policy is malformed. It is
// fatal at startup; a request never sees it.
var ErrInvalidThresholdConfig = errors.New("invalid violation threshold config")

// Policy maps each violation kind to its disqualification threshold.
// A nil limit marks the kind unbounded: tracked and warned but never
// disqualifying. Thresholds are configuration, not logic; a drive may
// carry its own policy, otherwise the global one applies.
type Policy map[models.ViolationKind]*int

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	three := 3
	one := 1
	return Policy{
		models.ViolationTabSwitch:      &three,
		models.ViolationFullscreenExit: &three,
		models.ViolationRightClick:     &three,
		models.ViolationScreenshot:     &one,
		models.ViolationCopy:           nil,
		models.ViolationPaste:          nil,
	}
}

// Validate rejects unknown kinds and non-positive limits.
func (p Policy) Validate() error {
	for kind, limit := range p {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown kind %q", ErrInvalidThresholdConfig, kind)
		}
		if limit != nil && *limit <= 0 {
			return fmt.Errorf("%w: threshold for %q must be positive, got %d", ErrInvalidThresholdConfig, kind, *limit)
		}
	}
	return nil
}

// Threshold returns the limit for a kind; a kind absent from the policy
// is treated as unbounded.
func (p Policy) Threshold(kind models.ViolationKind) *int {
	return p[kind]
}

// FromLimits builds a Policy from a plain map, as parsed from YAML
// config (`tab_switch: 3`, `copy: null`).
func FromLimits(limits map[string]*int) (Policy, error) {
	p := make(Policy, len(limits))
	for name, limit := range limits {
		p[models.ViolationKind(name)] = limit
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
