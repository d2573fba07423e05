package violation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/models"
)

// ErrUnknownViolationKind means the client reported a kind the tracker
// does not know.
var ErrUnknownViolationKind = errors.New("unknown violation kind")

// ViolationRepository defines what the tracker needs from violation
// storage. Increment must be atomic at the row level.
type ViolationRepository interface {
	Increment(ctx context.Context, sessionID uuid.UUID, kind models.ViolationKind) (int, error)
	GetCounts(ctx context.Context, sessionID uuid.UUID) (models.ViolationCounts, error)
}

// SessionGateway defines what the tracker needs from the session
// manager: the per-session lock, state reads, and the disqualification
// callback.
type SessionGateway interface {
	Lock(sessionID uuid.UUID) func()
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	DisqualifyLocked(ctx context.Context, sessionID uuid.UUID, kind models.ViolationKind, reason string, totalViolations int) (*models.Session, error)
}

// App counts integrity violations per session and escalates them to
// disqualification when a kind's threshold is reached.
type App struct {
	repo     ViolationRepository
	sessions SessionGateway

	defaultPolicy Policy

	policyMu      sync.RWMutex
	drivePolicies map[uuid.UUID]Policy
}

// NewApp creates a new violation App. The default policy must be valid;
// a broken threshold table is a startup failure, not a request error.
func NewApp(repo ViolationRepository, sessions SessionGateway, defaultPolicy Policy) (*App, error) {
	if err := defaultPolicy.Validate(); err != nil {
		return nil, err
	}
	return &App{
		repo:          repo,
		sessions:      sessions,
		defaultPolicy: defaultPolicy,
		drivePolicies: make(map[uuid.UUID]Policy),
	}, nil
}

// SetDrivePolicy overrides the threshold table for one drive.
func (a *App) SetDrivePolicy(driveID uuid.UUID, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a.policyMu.Lock()
	a.drivePolicies[driveID] = p
	a.policyMu.Unlock()
	return nil
}

// PolicyFor returns the effective policy for a drive.
func (a *App) PolicyFor(driveID uuid.UUID) Policy {
	a.policyMu.RLock()
	defer a.policyMu.RUnlock()
	if p, ok := a.drivePolicies[driveID]; ok {
		return p
	}
	return a.defaultPolicy
}

// Record counts one violation and evaluates the threshold. The whole
// check-and-increment runs under the session lock, so two concurrent
// violations for one session serialize: the Nth crossing disqualifies
// exactly once, and anything after a terminal state is Ignored rather
// than re-counted.
func (a *App) Record(ctx context.Context, sessionID uuid.UUID, kind models.ViolationKind) (*Outcome, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownViolationKind, kind)
	}

	release := a.sessions.Lock(sessionID)
	defer release()

	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		counts, err := a.repo.GetCounts(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			Kind:              OutcomeIgnored,
			ViolationKind:     kind,
			Count:             counts[kind],
			IsDisqualified:    sess.IsDisqualified,
			Reason:            sess.DisqualificationReason,
			CurrentViolations: counts,
			TotalViolations:   counts.Total(),
		}, nil
	}

	count, err := a.repo.Increment(ctx, sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}
	counts, err := a.repo.GetCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	threshold := a.PolicyFor(sess.DriveID).Threshold(kind)
	if threshold == nil {
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("kind", string(kind)).
			Int("count", count).
			Msg("unbounded violation recorded")
		return &Outcome{
			Kind:              OutcomeWarned,
			ViolationKind:     kind,
			Count:             count,
			CurrentViolations: counts,
			TotalViolations:   counts.Total(),
		}, nil
	}

	if count >= *threshold {
		reason := fmt.Sprintf("Exceeded %s limit.", kind)
		disqualified, err := a.sessions.DisqualifyLocked(ctx, sessionID, kind, reason, counts.Total())
		if err != nil {
			return nil, fmt.Errorf("failed to disqualify session: %w", err)
		}
		return &Outcome{
			Kind:              OutcomeDisqualified,
			ViolationKind:     kind,
			Count:             count,
			IsDisqualified:    true,
			Reason:            disqualified.DisqualificationReason,
			CurrentViolations: counts,
			TotalViolations:   counts.Total(),
		}, nil
	}

	remaining := *threshold - count
	log.Debug().
		Str("session_id", sessionID.String()).
		Str("kind", string(kind)).
		Int("count", count).
		Int("remaining", remaining).
		Msg("violation recorded")
	return &Outcome{
		Kind:              OutcomeWarned,
		ViolationKind:     kind,
		Count:             count,
		Remaining:         &remaining,
		CurrentViolations: counts,
		TotalViolations:   counts.Total(),
	}, nil
}

// Counts returns the per-kind counts for a session.
func (a *App) Counts(ctx context.Context, sessionID uuid.UUID) (models.ViolationCounts, error) {
	return a.repo.GetCounts(ctx, sessionID)
}
