package window

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/exam/events"
	"github.com/proctorhq/examengine/go/internal/models"
)

// WindowRepository defines what the window app layer needs from the
// window repository. Conditional updates (MarkOpened/MarkClosed) must be
// atomic: they only take effect when the row is still in the expected
// state, and return ErrWindowNotFound otherwise so racing callers fail
// cleanly instead of double-applying.
type WindowRepository interface {
	CreateWindow(ctx context.Context, req CreateWindowRequest) (*models.DriveWindow, error)
	GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
	ApproveWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
	MarkOpened(ctx context.Context, params OpenParams) (*models.DriveWindow, error)
	MarkClosed(ctx context.Context, params CloseParams) (*models.DriveWindow, error)
	ExpireUnopened(ctx context.Context, params CloseParams) (*models.DriveWindow, error)
	FetchWindowsDueForOpen(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
	FetchWindowsDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
	FetchNextDeadline(ctx context.Context, now time.Time) (*NextDeadline, error)
}

// OutboxApp defines what the window app needs from the outbox.
type OutboxApp interface {
	InsertWindowOpened(ctx context.Context, driveID uuid.UUID, payload []byte) error
	InsertWindowClosed(ctx context.Context, driveID uuid.UUID, payload []byte) error
}

// App handles drive window business logic: the aggregate exam window a
// company controls, independent of individual student attempts.
type App struct {
	repo   WindowRepository
	outbox OutboxApp
	clock  clock.Clock
}

// NewApp creates a new window App.
func NewApp(repo WindowRepository, outbox OutboxApp, clk clock.Clock) *App {
	return &App{
		repo:   repo,
		outbox: outbox,
		clock:  clk,
	}
}

// CreateWindow creates a draft window with validated bounds. The
// per-student attempt duration must fit inside the scheduled window.
func (a *App) CreateWindow(ctx context.Context, req CreateWindowRequest) (*models.DriveWindow, error) {
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return nil, fmt.Errorf("%w: scheduled_end must be after scheduled_start", ErrInvalidWindowBounds)
	}
	if req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidWindowBounds)
	}
	if time.Duration(req.DurationMinutes)*time.Minute >= req.ScheduledEnd.Sub(req.ScheduledStart) {
		return nil, fmt.Errorf("%w: duration_minutes must be shorter than the scheduled window", ErrInvalidWindowBounds)
	}

	w, err := a.repo.CreateWindow(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	log.Info().
		Str("drive_id", w.DriveID.String()).
		Time("scheduled_start", w.ScheduledStart).
		Time("scheduled_end", w.ScheduledEnd).
		Int("duration_minutes", w.DurationMinutes).
		Msg("created drive window")
	return w, nil
}

// Approve activates the window so it can be opened. Scheduled bounds are
// immutable from this point on.
func (a *App) Approve(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	w, err := a.repo.ApproveWindow(ctx, driveID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("drive_id", driveID.String()).Msg("drive window approved")
	return w, nil
}

// GetWindow retrieves a window by drive ID.
func (a *App) GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	return a.repo.GetWindow(ctx, driveID)
}

// OpenWindow manually opens the exam window. Fails with ErrNotApproved if
// the drive lacks approval and ErrAlreadyOpen if actual_start is set.
func (a *App) OpenWindow(ctx context.Context, driveID uuid.UUID, actor string) (*models.DriveWindow, error) {
	return a.open(ctx, driveID, actor, false)
}

// AutoOpen opens the window on behalf of the scheduler at scheduled_start.
// Windows opened this way are eligible for scheduled-end auto expiry.
func (a *App) AutoOpen(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	return a.open(ctx, driveID, "scheduler", true)
}

func (a *App) open(ctx context.Context, driveID uuid.UUID, actor string, auto bool) (*models.DriveWindow, error) {
	now := a.clock.Now()
	w, err := a.repo.MarkOpened(ctx, OpenParams{
		DriveID:    driveID,
		OpenedAt:   now,
		Actor:      actor,
		AutoOpened: auto,
	})
	if err != nil {
		// The conditional update missed; re-read to report why.
		return nil, a.explainOpenFailure(ctx, driveID, err)
	}

	a.emitWindowOpened(ctx, w, actor, auto)

	log.Info().
		Str("drive_id", driveID.String()).
		Str("actor", actor).
		Bool("auto", auto).
		Time("actual_start", now).
		Msg("exam window opened")
	return w, nil
}

func (a *App) explainOpenFailure(ctx context.Context, driveID uuid.UUID, cause error) error {
	w, err := a.repo.GetWindow(ctx, driveID)
	if err != nil {
		return err
	}
	if w.ActualStart != nil {
		return ErrAlreadyOpen
	}
	if w.State == models.WindowStateDraft {
		return ErrNotApproved
	}
	return fmt.Errorf("failed to open window: %w", cause)
}

// CloseWindow manually closes the exam window. Fails with ErrNotOpen if
// actual_start is unset or actual_end is already set. Closing blocks new
// session starts only; sessions already in flight keep their own
// expected_end.
func (a *App) CloseWindow(ctx context.Context, driveID uuid.UUID, actor, reason string) (*models.DriveWindow, error) {
	return a.close(ctx, driveID, actor, reason, false)
}

// AutoExpire closes a lapsed window on behalf of the sweeper. Only
// windows that were opened automatically at scheduled_start, or never
// opened at all, are expired this way; manually opened windows stay under
// operator control until an explicit close.
func (a *App) AutoExpire(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	w, err := a.repo.GetWindow(ctx, driveID)
	if err != nil {
		return nil, err
	}
	if w.ActualEnd != nil {
		// Already closed; auto expiry is idempotent.
		return w, nil
	}
	if a.clock.Now().Before(w.ScheduledEnd) {
		return w, nil
	}
	if w.ActualStart != nil && !w.AutoOpened {
		return w, nil
	}
	if w.ActualStart == nil {
		// Window lapsed without ever opening: mark the terminal close
		// directly so the drive reads as completed.
		return a.closeUnopened(ctx, w)
	}
	return a.close(ctx, driveID, "scheduler", "scheduled window elapsed", true)
}

func (a *App) close(ctx context.Context, driveID uuid.UUID, actor, reason string, auto bool) (*models.DriveWindow, error) {
	now := a.clock.Now()
	w, err := a.repo.MarkClosed(ctx, CloseParams{
		DriveID:    driveID,
		ClosedAt:   now,
		Actor:      actor,
		Reason:     reason,
		AutoClosed: auto,
	})
	if err != nil {
		if _, getErr := a.repo.GetWindow(ctx, driveID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotOpen
	}

	a.emitWindowClosed(ctx, w, actor, reason, auto)

	log.Info().
		Str("drive_id", driveID.String()).
		Str("actor", actor).
		Str("reason", reason).
		Bool("auto", auto).
		Time("actual_end", now).
		Msg("exam window closed")
	return w, nil
}

func (a *App) closeUnopened(ctx context.Context, w *models.DriveWindow) (*models.DriveWindow, error) {
	closed, err := a.repo.ExpireUnopened(ctx, CloseParams{
		DriveID:    w.DriveID,
		ClosedAt:   a.clock.Now(),
		Actor:      "scheduler",
		Reason:     "window lapsed without opening",
		AutoClosed: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expire unopened window: %w", err)
	}
	a.emitWindowClosed(ctx, closed, "scheduler", "window lapsed without opening", true)
	log.Info().Str("drive_id", w.DriveID.String()).Msg("unopened window lapsed; marked closed")
	return closed, nil
}

// FetchWindowsDueForOpen returns approved windows whose scheduled_start
// has arrived but whose actual_start is unset.
func (a *App) FetchWindowsDueForOpen(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return a.repo.FetchWindowsDueForOpen(ctx, a.clock.Now(), limit)
}

// FetchWindowsDueForExpiry returns windows past scheduled_end that are
// still eligible for auto expiry.
func (a *App) FetchWindowsDueForExpiry(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return a.repo.FetchWindowsDueForExpiry(ctx, a.clock.Now(), limit)
}

// FetchNextDeadline returns the soonest scheduler-relevant window instant.
func (a *App) FetchNextDeadline(ctx context.Context) (*NextDeadline, error) {
	return a.repo.FetchNextDeadline(ctx, a.clock.Now())
}

func (a *App) emitWindowOpened(ctx context.Context, w *models.DriveWindow, actor string, auto bool) {
	if a.outbox == nil {
		return
	}
	payload := events.WindowOpenedPayload{
		DriveID:         w.DriveID.String(),
		OpenedAt:        *w.ActualStart,
		OpenedBy:        actor,
		AutoOpened:      auto,
		DurationMinutes: w.DurationMinutes,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("drive_id", w.DriveID.String()).Msg("failed to marshal WindowOpened payload")
		return
	}
	if err := a.outbox.InsertWindowOpened(ctx, w.DriveID, payloadBytes); err != nil {
		log.Error().Err(err).Str("drive_id", w.DriveID.String()).Msg("failed to emit WindowOpened event")
	}
}

func (a *App) emitWindowClosed(ctx context.Context, w *models.DriveWindow, actor, reason string, auto bool) {
	if a.outbox == nil {
		return
	}
	payload := events.WindowClosedPayload{
		DriveID:    w.DriveID.String(),
		ClosedAt:   *w.ActualEnd,
		ClosedBy:   actor,
		Reason:     reason,
		AutoClosed: auto,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("drive_id", w.DriveID.String()).Msg("failed to marshal WindowClosed payload")
		return
	}
	if err := a.outbox.InsertWindowClosed(ctx, w.DriveID, payloadBytes); err != nil {
		log.Error().Err(err).Str("drive_id", w.DriveID.String()).Msg("failed to emit WindowClosed event")
	}
}
