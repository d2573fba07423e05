package status

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/proctorhq/examengine/go/internal/models"
)

type fakeWindowStore struct {
	window *models.DriveWindow
}

func (f *fakeWindowStore) GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	copied := *f.window
	return &copied, nil
}

type fakeSessionStore struct {
	sessions []models.Session
}

func (f *fakeSessionStore) ListByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Session, error) {
	return f.sessions, nil
}

func (f *fakeSessionStore) GetByStudentDrive(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error) {
	for _, s := range f.sessions {
		if s.StudentID == studentID {
			copied := s
			return &copied, nil
		}
	}
	return nil, context.Canceled
}

func baseWindow(driveID uuid.UUID, at time.Time) *models.DriveWindow {
	return &models.DriveWindow{
		DriveID:         driveID,
		State:           models.WindowStateApproved,
		ScheduledStart:  at,
		ScheduledEnd:    at.Add(2 * time.Hour),
		DurationMinutes: 60,
	}
}

func TestGetExamStatusNotStarted(t *testing.T) {
	driveID := uuid.New()
	now := time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(now)
	w := baseWindow(driveID, now.Add(time.Hour))
	app := NewApp(&fakeWindowStore{window: w}, &fakeSessionStore{}, clk)

	st, err := app.GetExamStatus(context.Background(), driveID)
	if err != nil {
		t.Fatalf("GetExamStatus: %v", err)
	}
	if st.ExamState != ExamStateNotStarted {
		t.Errorf("exam_state = %s, want not_started", st.ExamState)
	}
	if !st.CanStart || st.CanEnd {
		t.Errorf("can_start = %v, can_end = %v, want true/false", st.CanStart, st.CanEnd)
	}
	if st.TimeRemaining != 0 || st.ShouldAutoEnd {
		t.Errorf("closed-window clock fields leaked: remaining %d, auto_end %v", st.TimeRemaining, st.ShouldAutoEnd)
	}
	if st.HasStudents || st.StudentCount != 0 {
		t.Errorf("student fields = %v/%d, want false/0", st.HasStudents, st.StudentCount)
	}
	if st.ScheduledStart != "2026-04-10T09:00:00Z" {
		t.Errorf("scheduled_start = %s", st.ScheduledStart)
	}
}

func TestGetExamStatusOngoing(t *testing.T) {
	driveID := uuid.New()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start.Add(30 * time.Minute))
	w := baseWindow(driveID, start)
	w.State = models.WindowStateOpen
	w.ActualStart = &start

	sessions := []models.Session{
		{ID: uuid.New(), DriveID: driveID, State: models.SessionStateInProgress},
		{ID: uuid.New(), DriveID: driveID, State: models.SessionStateInProgress},
		{ID: uuid.New(), DriveID: driveID, State: models.SessionStateSubmitted},
		{ID: uuid.New(), DriveID: driveID, State: models.SessionStateDisqualified},
	}
	app := NewApp(&fakeWindowStore{window: w}, &fakeSessionStore{sessions: sessions}, clk)

	st, err := app.GetExamStatus(context.Background(), driveID)
	if err != nil {
		t.Fatalf("GetExamStatus: %v", err)
	}
	if st.ExamState != ExamStateOngoing {
		t.Errorf("exam_state = %s, want ongoing", st.ExamState)
	}
	if st.CanStart || !st.CanEnd {
		t.Errorf("can_start = %v, can_end = %v, want false/true", st.CanStart, st.CanEnd)
	}
	if st.TimeRemaining != 90*60 {
		t.Errorf("time_remaining = %d, want %d", st.TimeRemaining, 90*60)
	}
	if st.TimeRemainingMinutes != 90 {
		t.Errorf("time_remaining_minutes = %d, want 90", st.TimeRemainingMinutes)
	}
	if st.ShouldAutoEnd {
		t.Error("should_auto_end before scheduled_end")
	}
	if st.StudentCount != 4 || !st.HasStudents {
		t.Errorf("student count = %d", st.StudentCount)
	}
	want := StateTally{InProgress: 2, Submitted: 1, Disqualified: 1}
	if st.StateCounts != want {
		t.Errorf("session_states = %+v, want %+v", st.StateCounts, want)
	}
}

func TestGetExamStatusShouldAutoEnd(t *testing.T) {
	driveID := uuid.New()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start.Add(3 * time.Hour))
	w := baseWindow(driveID, start)
	w.State = models.WindowStateOpen
	w.ActualStart = &start
	app := NewApp(&fakeWindowStore{window: w}, &fakeSessionStore{}, clk)

	st, err := app.GetExamStatus(context.Background(), driveID)
	if err != nil {
		t.Fatalf("GetExamStatus: %v", err)
	}
	if st.TimeRemaining != 0 {
		t.Errorf("time_remaining = %d, want 0", st.TimeRemaining)
	}
	if !st.ShouldAutoEnd {
		t.Error("should_auto_end = false past scheduled_end of an open window")
	}
}

func TestGetExamStatusEnded(t *testing.T) {
	driveID := uuid.New()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	clk := clockwork.NewFakeClockAt(end.Add(time.Hour))
	w := baseWindow(driveID, start)
	w.State = models.WindowStateClosed
	w.ActualStart = &start
	w.ActualEnd = &end
	app := NewApp(&fakeWindowStore{window: w}, &fakeSessionStore{}, clk)

	st, err := app.GetExamStatus(context.Background(), driveID)
	if err != nil {
		t.Fatalf("GetExamStatus: %v", err)
	}
	if st.ExamState != ExamStateEnded {
		t.Errorf("exam_state = %s, want ended", st.ExamState)
	}
	if st.CanStart || st.CanEnd || st.ShouldAutoEnd {
		t.Errorf("ended window flags = %v/%v/%v, want all false", st.CanStart, st.CanEnd, st.ShouldAutoEnd)
	}
	if st.ActualEnd == nil || *st.ActualEnd != "2026-04-10T11:00:00Z" {
		t.Errorf("actual_end = %v", st.ActualEnd)
	}
}

func TestGetStudentStatus(t *testing.T) {
	driveID := uuid.New()
	studentID := uuid.New()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	expectedEnd := start.Add(time.Hour)
	clk := clockwork.NewFakeClockAt(start.Add(45 * time.Minute))

	sess := models.Session{
		ID:          uuid.New(),
		StudentID:   studentID,
		DriveID:     driveID,
		State:       models.SessionStateInProgress,
		StartedAt:   &start,
		ExpectedEnd: &expectedEnd,
	}
	app := NewApp(&fakeWindowStore{window: baseWindow(driveID, start)}, &fakeSessionStore{sessions: []models.Session{sess}}, clk)

	st, err := app.GetStudentStatus(context.Background(), driveID, studentID)
	if err != nil {
		t.Fatalf("GetStudentStatus: %v", err)
	}
	if st.State != models.SessionStateInProgress {
		t.Errorf("state = %s", st.State)
	}
	if st.TimeRemaining != 15*60 {
		t.Errorf("time_remaining = %d, want %d", st.TimeRemaining, 15*60)
	}
	if st.HasSubmitted || st.IsDisqualified {
		t.Errorf("terminal flags set on in-progress session")
	}
}

func TestGetStudentStatusTerminalHasNoCountdown(t *testing.T) {
	driveID := uuid.New()
	studentID := uuid.New()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	expectedEnd := start.Add(time.Hour)
	submitted := start.Add(20 * time.Minute)
	clk := clockwork.NewFakeClockAt(start.Add(30 * time.Minute))

	sess := models.Session{
		ID:          uuid.New(),
		StudentID:   studentID,
		DriveID:     driveID,
		State:       models.SessionStateSubmitted,
		StartedAt:   &start,
		ExpectedEnd: &expectedEnd,
		SubmittedAt: &submitted,
	}
	app := NewApp(&fakeWindowStore{window: baseWindow(driveID, start)}, &fakeSessionStore{sessions: []models.Session{sess}}, clk)

	st, err := app.GetStudentStatus(context.Background(), driveID, studentID)
	if err != nil {
		t.Fatalf("GetStudentStatus: %v", err)
	}
	if !st.HasSubmitted {
		t.Error("has_submitted = false after submit")
	}
	if st.TimeRemaining != 0 {
		t.Errorf("time_remaining = %d on a submitted session, want 0", st.TimeRemaining)
	}
}
