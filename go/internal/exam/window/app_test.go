package window

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/proctorhq/examengine/go/internal/models"
)

type memWindowRepo struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*models.DriveWindow
}

func newMemWindowRepo() *memWindowRepo {
	return &memWindowRepo{windows: make(map[uuid.UUID]*models.DriveWindow)}
}

func (r *memWindowRepo) CreateWindow(ctx context.Context, req CreateWindowRequest) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &models.DriveWindow{
		DriveID:         req.DriveID,
		State:           models.WindowStateDraft,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
		DurationMinutes: req.DurationMinutes,
	}
	r.windows[req.DriveID] = w
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[driveID]
	if !ok {
		return nil, ErrWindowNotFound
	}
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) ApproveWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[driveID]
	if !ok || w.State != models.WindowStateDraft {
		return nil, ErrWindowNotFound
	}
	w.State = models.WindowStateApproved
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) MarkOpened(ctx context.Context, params OpenParams) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[params.DriveID]
	if !ok || w.ActualStart != nil || w.State != models.WindowStateApproved {
		return nil, ErrWindowNotFound
	}
	openedAt := params.OpenedAt
	actor := params.Actor
	w.State = models.WindowStateOpen
	w.ActualStart = &openedAt
	w.OpenedBy = &actor
	w.AutoOpened = params.AutoOpened
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) MarkClosed(ctx context.Context, params CloseParams) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[params.DriveID]
	if !ok || w.ActualStart == nil || w.ActualEnd != nil {
		return nil, ErrWindowNotFound
	}
	r.applyClose(w, params)
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) ExpireUnopened(ctx context.Context, params CloseParams) (*models.DriveWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[params.DriveID]
	if !ok || w.ActualStart != nil || w.ActualEnd != nil {
		return nil, ErrWindowNotFound
	}
	r.applyClose(w, params)
	copied := *w
	return &copied, nil
}

func (r *memWindowRepo) applyClose(w *models.DriveWindow, params CloseParams) {
	closedAt := params.ClosedAt
	actor := params.Actor
	reason := params.Reason
	w.State = models.WindowStateClosed
	w.ActualEnd = &closedAt
	w.ClosedBy = &actor
	w.CloseReason = &reason
}

func (r *memWindowRepo) FetchWindowsDueForOpen(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []uuid.UUID
	for _, w := range r.windows {
		if w.State == models.WindowStateApproved && w.ActualStart == nil &&
			!now.Before(w.ScheduledStart) && now.Before(w.ScheduledEnd) {
			due = append(due, w.DriveID)
		}
	}
	return due, nil
}

func (r *memWindowRepo) FetchWindowsDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []uuid.UUID
	for _, w := range r.windows {
		if w.ActualEnd != nil || now.Before(w.ScheduledEnd) {
			continue
		}
		if w.State != models.WindowStateApproved && w.State != models.WindowStateOpen {
			continue
		}
		if w.ActualStart == nil || w.AutoOpened {
			due = append(due, w.DriveID)
		}
	}
	return due, nil
}

func (r *memWindowRepo) FetchNextDeadline(ctx context.Context, now time.Time) (*NextDeadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next *NextDeadline
	consider := func(driveID uuid.UUID, at time.Time) {
		if next == nil || at.Before(*next.Deadline) {
			deadline := at
			next = &NextDeadline{DriveID: driveID, Deadline: &deadline}
		}
	}
	for _, w := range r.windows {
		if w.State == models.WindowStateApproved && w.ActualStart == nil && w.ScheduledEnd.After(now) {
			consider(w.DriveID, w.ScheduledStart)
		}
		if w.ActualEnd == nil && (w.State == models.WindowStateApproved || w.State == models.WindowStateOpen) &&
			(w.ActualStart == nil || w.AutoOpened) {
			consider(w.DriveID, w.ScheduledEnd)
		}
	}
	return next, nil
}

type windowFixture struct {
	app     *App
	repo    *memWindowRepo
	clock   *clockwork.FakeClock
	driveID uuid.UUID
	request CreateWindowRequest
}

func newWindowFixture(t *testing.T) *windowFixture {
	t.Helper()
	start := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start)
	repo := newMemWindowRepo()
	driveID := uuid.New()
	return &windowFixture{
		app:     NewApp(repo, nil, clk),
		repo:    repo,
		clock:   clk,
		driveID: driveID,
		request: CreateWindowRequest{
			DriveID:         driveID,
			ScheduledStart:  start.Add(time.Hour),
			ScheduledEnd:    start.Add(4 * time.Hour),
			DurationMinutes: 60,
		},
	}
}

func (f *windowFixture) createApproved(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.app.CreateWindow(ctx, f.request); err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	if _, err := f.app.Approve(ctx, f.driveID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
}

func TestCreateWindowValidatesBounds(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	base := f.request

	tests := []struct {
		name   string
		mutate func(*CreateWindowRequest)
	}{
		{"end before start", func(r *CreateWindowRequest) {
			r.ScheduledEnd = r.ScheduledStart.Add(-time.Hour)
		}},
		{"end equals start", func(r *CreateWindowRequest) {
			r.ScheduledEnd = r.ScheduledStart
		}},
		{"zero duration", func(r *CreateWindowRequest) {
			r.DurationMinutes = 0
		}},
		{"duration fills the whole window", func(r *CreateWindowRequest) {
			r.DurationMinutes = 180
		}},
		{"duration exceeds the window", func(r *CreateWindowRequest) {
			r.DurationMinutes = 240
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if _, err := f.app.CreateWindow(ctx, req); !errors.Is(err, ErrInvalidWindowBounds) {
				t.Errorf("CreateWindow = %v, want ErrInvalidWindowBounds", err)
			}
		})
	}

	w, err := f.app.CreateWindow(ctx, base)
	if err != nil {
		t.Fatalf("CreateWindow valid: %v", err)
	}
	if w.State != models.WindowStateDraft {
		t.Errorf("state = %s, want DRAFT", w.State)
	}
}

func TestOpenWindowRequiresApproval(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()

	if _, err := f.app.CreateWindow(ctx, f.request); err != nil {
		t.Fatalf("CreateWindow: %v", err)
	}
	if _, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme"); !errors.Is(err, ErrNotApproved) {
		t.Errorf("open unapproved = %v, want ErrNotApproved", err)
	}
}

func TestOpenWindowOnce(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	w, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme")
	if err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	if !w.IsOpen() || w.AutoOpened {
		t.Fatalf("window after manual open = %+v", w)
	}
	if w.ActualStart == nil || !w.ActualStart.Equal(f.clock.Now()) {
		t.Errorf("actual_start = %v, want %v", w.ActualStart, f.clock.Now())
	}

	if _, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme"); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second open = %v, want ErrAlreadyOpen", err)
	}
}

func TestCloseWindowLifecycle(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	if _, err := f.app.CloseWindow(ctx, f.driveID, "ops@acme", "early"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("close before open = %v, want ErrNotOpen", err)
	}

	if _, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme"); err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	w, err := f.app.CloseWindow(ctx, f.driveID, "ops@acme", "done")
	if err != nil {
		t.Fatalf("CloseWindow: %v", err)
	}
	if w.State != models.WindowStateClosed || w.ActualEnd == nil {
		t.Fatalf("window after close = %+v", w)
	}

	// A closed window never reopens or re-closes.
	if _, err := f.app.CloseWindow(ctx, f.driveID, "ops@acme", "again"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("second close = %v, want ErrNotOpen", err)
	}
	if _, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme"); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("reopen after close = %v, want ErrAlreadyOpen", err)
	}
}

func TestAutoExpireBeforeScheduledEnd(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	f.clock.Advance(time.Hour)
	if _, err := f.app.AutoOpen(ctx, f.driveID); err != nil {
		t.Fatalf("AutoOpen: %v", err)
	}

	w, err := f.app.AutoExpire(ctx, f.driveID)
	if err != nil {
		t.Fatalf("AutoExpire: %v", err)
	}
	if w.ActualEnd != nil {
		t.Errorf("window expired before scheduled_end: %+v", w)
	}
}

func TestAutoExpireClosesAutoOpenedWindow(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	f.clock.Advance(time.Hour)
	if _, err := f.app.AutoOpen(ctx, f.driveID); err != nil {
		t.Fatalf("AutoOpen: %v", err)
	}

	f.clock.Advance(3 * time.Hour)
	w, err := f.app.AutoExpire(ctx, f.driveID)
	if err != nil {
		t.Fatalf("AutoExpire: %v", err)
	}
	if w.State != models.WindowStateClosed || w.ActualEnd == nil {
		t.Fatalf("window after auto expiry = %+v", w)
	}

	// Idempotent on a second sweep.
	again, err := f.app.AutoExpire(ctx, f.driveID)
	if err != nil {
		t.Fatalf("AutoExpire again: %v", err)
	}
	if !again.ActualEnd.Equal(*w.ActualEnd) {
		t.Errorf("repeat expiry moved actual_end: %v vs %v", again.ActualEnd, w.ActualEnd)
	}
}

func TestAutoExpireSkipsManuallyOpenedWindow(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	f.clock.Advance(time.Hour)
	if _, err := f.app.OpenWindow(ctx, f.driveID, "ops@acme"); err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}

	f.clock.Advance(5 * time.Hour)
	w, err := f.app.AutoExpire(ctx, f.driveID)
	if err != nil {
		t.Fatalf("AutoExpire: %v", err)
	}
	if w.ActualEnd != nil {
		t.Errorf("manually opened window was auto expired: %+v", w)
	}
}

func TestAutoExpireClosesUnopenedLapsedWindow(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	f.clock.Advance(5 * time.Hour)
	w, err := f.app.AutoExpire(ctx, f.driveID)
	if err != nil {
		t.Fatalf("AutoExpire: %v", err)
	}
	if w.State != models.WindowStateClosed || w.ActualEnd == nil {
		t.Fatalf("lapsed unopened window = %+v", w)
	}
	if w.ActualStart != nil {
		t.Errorf("expiry of an unopened window set actual_start: %v", w.ActualStart)
	}
}

func TestFetchDueWindows(t *testing.T) {
	f := newWindowFixture(t)
	ctx := context.Background()
	f.createApproved(t)

	due, err := f.app.FetchWindowsDueForOpen(ctx, 10)
	if err != nil {
		t.Fatalf("FetchWindowsDueForOpen: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("due for open before scheduled_start = %v", due)
	}

	f.clock.Advance(time.Hour)
	due, err = f.app.FetchWindowsDueForOpen(ctx, 10)
	if err != nil {
		t.Fatalf("FetchWindowsDueForOpen: %v", err)
	}
	if len(due) != 1 || due[0] != f.driveID {
		t.Errorf("due for open = %v, want [%s]", due, f.driveID)
	}

	if _, err := f.app.AutoOpen(ctx, f.driveID); err != nil {
		t.Fatalf("AutoOpen: %v", err)
	}
	f.clock.Advance(3 * time.Hour)
	due, err = f.app.FetchWindowsDueForExpiry(ctx, 10)
	if err != nil {
		t.Fatalf("FetchWindowsDueForExpiry: %v", err)
	}
	if len(due) != 1 || due[0] != f.driveID {
		t.Errorf("due for expiry = %v, want [%s]", due, f.driveID)
	}
}
