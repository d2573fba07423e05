package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the single source of truth for "now". Every authoritative
// decision (window open/close, expected_end, expiry) goes through it;
// client-reported timestamps are display-only and never consulted.
// In production, use New(). In tests, a clockwork.FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// New returns the real wall clock. All times it produces are UTC.
func New() Clock {
	return utcClock{clockwork.NewRealClock()}
}

// utcClock normalizes Now() to UTC so stored timestamps and ISO-8601
// serializations never carry a local zone.
type utcClock struct {
	inner clockwork.Clock
}

func (c utcClock) Now() time.Time {
	return c.inner.Now().UTC()
}

func (c utcClock) NewTimer(d time.Duration) clockwork.Timer {
	return c.inner.NewTimer(d)
}
