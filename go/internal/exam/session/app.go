package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/exam/events"
	"github.com/proctorhq/examengine/go/internal/models"
)

// SessionRepository defines what the session app layer needs from the
// session repository. State transitions are conditional updates that
// return ErrStaleTransition when the row is no longer in the expected
// state; MarkStarted additionally verifies the drive window is still
// open inside the same transaction.
type SessionRepository interface {
	EnsureSession(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByStudentDrive(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error)
	MarkStarted(ctx context.Context, params StartParams) (*models.Session, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (*models.Session, error)
	MarkDisqualified(ctx context.Context, id uuid.UUID, reason string) (*models.Session, error)
	MarkAutoExpired(ctx context.Context, id uuid.UUID, at time.Time) (*models.Session, error)
	FetchSessionsDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
	FetchNextDeadline(ctx context.Context) (*NextDeadline, error)
	ListByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Session, error)
}

// WindowStore defines what the session app needs from the window
// controller.
type WindowStore interface {
	GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
}

// QuestionStore supplies the drive's questions for order randomization.
type QuestionStore interface {
	GetQuestionsByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Question, error)
}

// Finalizer freezes answers and produces the immutable result.
type Finalizer interface {
	Finalize(ctx context.Context, session *models.Session, answers []models.Answer) (*models.Result, error)
	GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error)
}

// OutboxApp defines what the session app needs from the outbox.
type OutboxApp interface {
	InsertSessionStarted(ctx context.Context, driveID uuid.UUID, payload []byte) error
	InsertSessionSubmitted(ctx context.Context, driveID uuid.UUID, payload []byte) error
	InsertSessionDisqualified(ctx context.Context, driveID uuid.UUID, payload []byte) error
	InsertSessionAutoExpired(ctx context.Context, driveID uuid.UUID, payload []byte) error
}

// App is the per-student attempt state machine:
// NotStarted -> InProgress -> {Submitted | Disqualified | AutoExpired}.
// Every mutation of one session serializes through its keyed lock.
type App struct {
	repo      SessionRepository
	windows   WindowStore
	questions QuestionStore
	finalizer Finalizer
	outbox    OutboxApp
	clock     clock.Clock
	locks     *keyedLocks
}

// NewApp creates a new session App.
func NewApp(repo SessionRepository, windows WindowStore, questions QuestionStore, finalizer Finalizer, outbox OutboxApp, clk clock.Clock) *App {
	return &App{
		repo:      repo,
		windows:   windows,
		questions: questions,
		finalizer: finalizer,
		outbox:    outbox,
		clock:     clk,
		locks:     newKeyedLocks(),
	}
}

// Lock acquires the per-session lock and returns its release func. The
// violation tracker uses this so its check-and-increment is atomic with
// respect to submits and the expiry sweep.
func (a *App) Lock(sessionID uuid.UUID) func() {
	return a.locks.acquire(sessionID)
}

// Start begins (or resumes) a student's attempt. Idempotent: a session
// that already started returns its existing state with the original
// expected_end, so a reconnect never resets the timer. A first-time
// start requires the drive window to be open; expected_end is computed
// exactly once, from the server clock plus the drive's attempt duration.
func (a *App) Start(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error) {
	sess, err := a.repo.EnsureSession(ctx, studentID, driveID)
	if err != nil {
		return nil, err
	}

	release := a.locks.acquire(sess.ID)
	defer release()

	sess, err = a.repo.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if sess.Started() {
		// Re-entry after disconnect is not a new start.
		return sess, nil
	}

	w, err := a.windows.GetWindow(ctx, driveID)
	if err != nil {
		return nil, err
	}
	if w.ActualStart == nil {
		return nil, ErrWindowNotOpen
	}
	if w.ActualEnd != nil {
		return nil, ErrWindowClosed
	}

	order, err := a.randomizedOrder(ctx, driveID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	started, err := a.repo.MarkStarted(ctx, StartParams{
		SessionID:     sess.ID,
		DriveID:       driveID,
		StartedAt:     now,
		ExpectedEnd:   now.Add(w.AttemptDuration()),
		QuestionOrder: order,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			// Lost a race with another start of the same session; the
			// stored state wins.
			return a.repo.GetSession(ctx, sess.ID)
		}
		return nil, err
	}

	a.emitStarted(ctx, started, w.DurationMinutes)

	log.Info().
		Str("session_id", started.ID.String()).
		Str("student_id", studentID.String()).
		Str("drive_id", driveID.String()).
		Time("expected_end", *started.ExpectedEnd).
		Msg("exam attempt started")
	return started, nil
}

// GetStatus returns the point-in-time status of a student's attempt.
// It never recomputes expected_end; remaining time always derives from
// the stored value.
func (a *App) GetStatus(ctx context.Context, studentID, driveID uuid.UUID) (*Status, error) {
	sess, err := a.repo.GetByStudentDrive(ctx, studentID, driveID)
	if err != nil {
		return nil, err
	}
	return a.statusOf(sess), nil
}

// GetSession returns a session by ID.
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// GetByStudentDrive returns the session for a (student, drive) pair.
func (a *App) GetByStudentDrive(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error) {
	return a.repo.GetByStudentDrive(ctx, studentID, driveID)
}

// ListByDrive returns every session of a drive.
func (a *App) ListByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Session, error) {
	return a.repo.ListByDrive(ctx, driveID)
}

// Submit records the student's answers and finalizes the attempt.
// Idempotent: a terminal session returns its stored outcome rather than
// erroring, so client retries after a dropped response are harmless.
// A student mid-attempt when the window closes may still submit; only
// their own expected_end governs, and even a submit shortly past it is
// accepted if the sweep has not expired the session first.
func (a *App) Submit(ctx context.Context, studentID, driveID uuid.UUID, answers []models.Answer) (*SubmitOutcome, error) {
	sess, err := a.repo.GetByStudentDrive(ctx, studentID, driveID)
	if err != nil {
		return nil, err
	}

	release := a.locks.acquire(sess.ID)
	defer release()

	sess, err = a.repo.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return a.replayOutcome(ctx, sess)
	}
	if !sess.Started() {
		return nil, ErrNotStarted
	}

	now := a.clock.Now()
	submitted, err := a.repo.MarkSubmitted(ctx, sess.ID, now)
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			sess, getErr := a.repo.GetSession(ctx, sess.ID)
			if getErr != nil {
				return nil, getErr
			}
			return a.replayOutcome(ctx, sess)
		}
		return nil, err
	}

	result, err := a.finalizer.Finalize(ctx, submitted, answers)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize submission: %w", err)
	}

	a.emitSubmitted(ctx, submitted, result)

	log.Info().
		Str("session_id", submitted.ID.String()).
		Int("score", result.Score).
		Int("total_marks", result.TotalMarks).
		Msg("exam attempt submitted")
	return &SubmitOutcome{Session: submitted, Result: result}, nil
}

// DisqualifyLocked terminates the session for an integrity violation.
// The caller (the violation tracker) must hold the session lock.
// Irreversible and idempotent: an already-terminal session is returned
// unchanged and the stored reason is never overwritten.
func (a *App) DisqualifyLocked(ctx context.Context, sessionID uuid.UUID, kind models.ViolationKind, reason string, totalViolations int) (*models.Session, error) {
	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return sess, nil
	}

	now := a.clock.Now()
	disqualified, err := a.repo.MarkDisqualified(ctx, sessionID, reason)
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return a.repo.GetSession(ctx, sessionID)
		}
		return nil, err
	}

	// A disqualified attempt scores zero; persisting the zero result up
	// front makes later submit retries replay it unchanged.
	if _, err := a.finalizer.Finalize(ctx, disqualified, nil); err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to finalize disqualified session")
	}

	a.emitDisqualified(ctx, disqualified, kind, reason, totalViolations, now)

	log.Warn().
		Str("session_id", sessionID.String()).
		Str("violation_kind", string(kind)).
		Str("reason", reason).
		Msg("student disqualified")
	return disqualified, nil
}

// ExpireSession transitions an in-progress session past its expected_end
// to AutoExpired and scores it with whatever answers exist (none are
// recorded server-side before submit, so the set is empty). Racing a
// manual submit is safe: whichever commits first wins and the loser
// becomes a no-op.
func (a *App) ExpireSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	release := a.locks.acquire(sessionID)
	defer release()

	sess, err := a.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State.Terminal() {
		return sess, nil
	}
	now := a.clock.Now()
	if !sess.Expired(now) {
		return sess, nil
	}

	expired, err := a.repo.MarkAutoExpired(ctx, sessionID, now)
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return a.repo.GetSession(ctx, sessionID)
		}
		return nil, err
	}

	result, err := a.finalizer.Finalize(ctx, expired, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize expired session: %w", err)
	}

	a.emitAutoExpired(ctx, expired, result, now)

	log.Info().
		Str("session_id", sessionID.String()).
		Time("expected_end", *expired.ExpectedEnd).
		Msg("exam attempt auto-expired")
	return expired, nil
}

// FetchSessionsDueForExpiry returns in-progress sessions past their
// expected_end.
func (a *App) FetchSessionsDueForExpiry(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return a.repo.FetchSessionsDueForExpiry(ctx, a.clock.Now(), limit)
}

// FetchNextDeadline returns the soonest expected_end across in-progress
// sessions.
func (a *App) FetchNextDeadline(ctx context.Context) (*NextDeadline, error) {
	return a.repo.FetchNextDeadline(ctx)
}

func (a *App) statusOf(sess *models.Session) *Status {
	return &Status{
		State:          sess.State,
		StartedAt:      sess.StartedAt,
		ExpectedEnd:    sess.ExpectedEnd,
		TimeRemaining:  int64(sess.TimeRemaining(a.clock.Now()) / time.Second),
		HasSubmitted:   sess.SubmittedAt != nil,
		IsDisqualified: sess.IsDisqualified,
	}
}

func (a *App) replayOutcome(ctx context.Context, sess *models.Session) (*SubmitOutcome, error) {
	result, err := a.finalizer.GetResult(ctx, sess.ID)
	if err != nil {
		// Terminal without a stored result should not happen; surface
		// the session state and leave the result empty.
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("terminal session has no stored result")
		return &SubmitOutcome{Session: sess, Replayed: true}, nil
	}
	return &SubmitOutcome{Session: sess, Result: result, Replayed: true}, nil
}

func (a *App) randomizedOrder(ctx context.Context, driveID uuid.UUID) ([]uuid.UUID, error) {
	qs, err := a.questions.GetQuestionsByDrive(ctx, driveID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrNoQuestions
	}
	order := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		order[i] = q.ID
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order, nil
}

func (a *App) emitStarted(ctx context.Context, sess *models.Session, durationMinutes int) {
	if a.outbox == nil {
		return
	}
	a.emit(ctx, sess.DriveID, a.outbox.InsertSessionStarted, events.SessionStartedPayload{
		SessionID:       sess.ID.String(),
		StudentID:       sess.StudentID.String(),
		DriveID:         sess.DriveID.String(),
		StartedAt:       *sess.StartedAt,
		ExpectedEnd:     *sess.ExpectedEnd,
		DurationMinutes: durationMinutes,
	}, events.TypeSessionStarted)
}

func (a *App) emitSubmitted(ctx context.Context, sess *models.Session, result *models.Result) {
	if a.outbox == nil {
		return
	}
	a.emit(ctx, sess.DriveID, a.outbox.InsertSessionSubmitted, events.SessionSubmittedPayload{
		SessionID:   sess.ID.String(),
		StudentID:   sess.StudentID.String(),
		DriveID:     sess.DriveID.String(),
		SubmittedAt: *sess.SubmittedAt,
		Score:       result.Score,
		TotalMarks:  result.TotalMarks,
		Percentage:  result.Percentage,
	}, events.TypeSessionSubmitted)
}

func (a *App) emitDisqualified(ctx context.Context, sess *models.Session, kind models.ViolationKind, reason string, totalViolations int, at time.Time) {
	if a.outbox == nil {
		return
	}
	a.emit(ctx, sess.DriveID, a.outbox.InsertSessionDisqualified, events.SessionDisqualifiedPayload{
		SessionID:       sess.ID.String(),
		StudentID:       sess.StudentID.String(),
		DriveID:         sess.DriveID.String(),
		Kind:            string(kind),
		Reason:          reason,
		TotalViolations: totalViolations,
		DisqualifiedAt:  at,
	}, events.TypeSessionDisqualified)
}

func (a *App) emitAutoExpired(ctx context.Context, sess *models.Session, result *models.Result, at time.Time) {
	if a.outbox == nil {
		return
	}
	a.emit(ctx, sess.DriveID, a.outbox.InsertSessionAutoExpired, events.SessionAutoExpiredPayload{
		SessionID:   sess.ID.String(),
		StudentID:   sess.StudentID.String(),
		DriveID:     sess.DriveID.String(),
		ExpectedEnd: *sess.ExpectedEnd,
		ExpiredAt:   at,
		Score:       result.Score,
		TotalMarks:  result.TotalMarks,
	}, events.TypeSessionAutoExpired)
}

func (a *App) emit(ctx context.Context, driveID uuid.UUID, insert func(context.Context, uuid.UUID, []byte) error, payload any, eventType string) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}
	if err := insert(ctx, driveID, payloadBytes); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to emit event")
	}
}
