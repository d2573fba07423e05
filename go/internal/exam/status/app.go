package status

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/models"
)

// WindowStore reads the drive window the projection is built over.
type WindowStore interface {
	GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
}

// SessionStore reads the sessions the projection counts.
type SessionStore interface {
	ListByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Session, error)
	GetByStudentDrive(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error)
}

// App builds read-only status projections for the reconciliation
// endpoints. It never writes: should_auto_end is a signal for the
// sweeper and operator UI, acting on it is someone else's job.
type App struct {
	windows  WindowStore
	sessions SessionStore
	clock    clock.Clock
}

func NewApp(windows WindowStore, sessions SessionStore, clk clock.Clock) *App {
	return &App{
		windows:  windows,
		sessions: sessions,
		clock:    clk,
	}
}

// GetExamStatus returns the operator payload for one drive. All fields
// derive from the window row and the current session set at call time.
func (a *App) GetExamStatus(ctx context.Context, driveID uuid.UUID) (*ExamStatus, error) {
	w, err := a.windows.GetWindow(ctx, driveID)
	if err != nil {
		return nil, err
	}
	sessions, err := a.sessions.ListByDrive(ctx, driveID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	st := &ExamStatus{
		DriveID:         w.DriveID.String(),
		ExamState:       examState(w),
		ScheduledStart:  iso(w.ScheduledStart),
		ScheduledEnd:    iso(w.ScheduledEnd),
		ActualStart:     isoPtr(w.ActualStart),
		ActualEnd:       isoPtr(w.ActualEnd),
		DurationMinutes: w.DurationMinutes,
		CanStart:        w.State == models.WindowStateApproved && w.ActualStart == nil,
		CanEnd:          w.IsOpen(),
		HasStudents:     len(sessions) > 0,
		StudentCount:    len(sessions),
		GeneratedAt:     now,
		StateCounts:     tally(sessions),
	}

	if w.IsOpen() {
		rem := w.ScheduledEnd.Sub(now)
		if rem < 0 {
			rem = 0
		}
		st.TimeRemaining = int64(rem.Seconds())
		st.TimeRemainingMinutes = int64(rem.Minutes())
		st.ShouldAutoEnd = rem == 0
	}
	return st, nil
}

// GetStudentStatus returns one student's attempt view for a drive.
func (a *App) GetStudentStatus(ctx context.Context, driveID, studentID uuid.UUID) (*StudentStatus, error) {
	sess, err := a.sessions.GetByStudentDrive(ctx, studentID, driveID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	st := &StudentStatus{
		SessionID:              sess.ID.String(),
		State:                  sess.State,
		StartedAt:              isoPtr(sess.StartedAt),
		ExpectedEnd:            isoPtr(sess.ExpectedEnd),
		HasSubmitted:           sess.State == models.SessionStateSubmitted,
		IsDisqualified:         sess.IsDisqualified,
		DisqualificationReason: sess.DisqualificationReason,
	}
	if sess.State == models.SessionStateInProgress {
		st.TimeRemaining = int64(sess.TimeRemaining(now).Seconds())
	}
	return st, nil
}

func examState(w *models.DriveWindow) ExamState {
	switch {
	case w.ActualEnd != nil:
		return ExamStateEnded
	case w.ActualStart != nil:
		return ExamStateOngoing
	default:
		return ExamStateNotStarted
	}
}

func tally(sessions []models.Session) StateTally {
	var t StateTally
	for _, s := range sessions {
		switch s.State {
		case models.SessionStateNotStarted:
			t.NotStarted++
		case models.SessionStateInProgress:
			t.InProgress++
		case models.SessionStateSubmitted:
			t.Submitted++
		case models.SessionStateDisqualified:
			t.Disqualified++
		case models.SessionStateAutoExpired:
			t.AutoExpired++
		}
	}
	return t
}

func iso(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := iso(*t)
	return &s
}
