package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/window"
	"github.com/proctorhq/examengine/go/internal/models"
)

// WindowApp is the slice of the window manager the sweeper drives.
type WindowApp interface {
	AutoOpen(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
	AutoExpire(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error)
	FetchWindowsDueForOpen(ctx context.Context, limit int32) ([]uuid.UUID, error)
	FetchWindowsDueForExpiry(ctx context.Context, limit int32) ([]uuid.UUID, error)
	FetchNextDeadline(ctx context.Context) (*window.NextDeadline, error)
}

// SessionApp is the slice of the session manager the sweeper drives.
type SessionApp interface {
	ExpireSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	FetchSessionsDueForExpiry(ctx context.Context, limit int32) ([]uuid.UUID, error)
	FetchNextDeadline(ctx context.Context) (*session.NextDeadline, error)
}

type taskKind string

const (
	taskOpenWindow    taskKind = "open_window"
	taskExpireWindow  taskKind = "expire_window"
	taskExpireSession taskKind = "expire_session"
)

type task struct {
	kind taskKind
	id   uuid.UUID
}

// Sweeper is the deadline scheduler: it sleeps until the earliest
// pending deadline across windows (scheduled open/close) and sessions
// (expected_end), then hands the due work to a small worker pool. Every
// action it takes is idempotent in the apps it calls, so racing a
// manual open, close, or submit just makes the loser a no-op.
type Sweeper struct {
	windows    WindowApp
	sessions   SessionApp
	clock      clock.Clock
	batchSize  int32
	wakeCh     chan struct{}
	instanceID string

	numWorkers int
	workCh     chan task

	// Track in-flight tasks to prevent duplicate processing while a
	// worker is still on one.
	inFlight   map[task]bool
	inFlightMu sync.Mutex
}

const idlePollDuration = 30 * time.Second

func New(windows WindowApp, sessions SessionApp, clk clock.Clock, batchSize int32) *Sweeper {
	numWorkers := 8
	return &Sweeper{
		windows:    windows,
		sessions:   sessions,
		clock:      clk,
		batchSize:  batchSize,
		wakeCh:     make(chan struct{}, 1),
		instanceID: uuid.New().String()[:8],

		numWorkers: numWorkers,
		workCh:     make(chan task, numWorkers*2),
		inFlight:   make(map[task]bool),
	}
}

// Wake signals the scheduler that a sooner deadline may exist, e.g.
// after a window is approved or a session starts.
func (s *Sweeper) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// RunScheduler loops forever, sleeping until the next deadline and
// dispatching due windows and sessions to the worker pool.
func (s *Sweeper) RunScheduler(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.numWorkers).Msg("sweeper started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", s.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("all workers shut down")
	}()

	timer := s.clock.NewTimer(0)
	defer timer.Stop()

	retryCount := 0
	const maxRetries = 3

	for {
		// Drain wake channel so a stale signal cannot cause a tight loop.
		select {
		case <-s.wakeCh:
			log.Debug().Str("instance", s.instanceID).Msg("drained wake channel")
		default:
		}

		deadline, err := s.nextDeadline(ctx)
		if err != nil {
			retryCount++
			if retryCount <= maxRetries {
				log.Error().
					Err(err).
					Int("retry", retryCount).
					Str("instance", s.instanceID).
					Msg("error fetching next deadline, retrying")
				timer.Reset(time.Second * time.Duration(retryCount))
				select {
				case <-timer.Chan():
					continue
				case <-ctx.Done():
					return nil
				}
			}
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching next deadline after retries")
			return err
		}
		retryCount = 0

		if deadline == nil {
			timer.Reset(idlePollDuration)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				log.Info().Str("instance", s.instanceID).Msg("shutdown during idle")
				return nil
			case <-s.wakeCh:
				log.Debug().Str("instance", s.instanceID).Msg("woken up from idle")
				continue
			}
		}

		wait := deadline.Sub(s.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
				log.Debug().Str("instance", s.instanceID).Msg("timer fired, fetching due work")
			case <-ctx.Done():
				log.Info().Str("instance", s.instanceID).Msg("shutdown during wait")
				return nil
			case <-s.wakeCh:
				log.Debug().Str("instance", s.instanceID).Msg("woken up early, new sooner deadline")
				continue
			}
		}

		if err := s.dispatchDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Str("instance", s.instanceID).Msg("error dispatching due work")
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// nextDeadline returns the earliest pending deadline across windows and
// sessions, or nil when nothing is scheduled.
func (s *Sweeper) nextDeadline(ctx context.Context) (*time.Time, error) {
	wnd, err := s.windows.FetchNextDeadline(ctx)
	if err != nil {
		return nil, err
	}
	snd, err := s.sessions.FetchNextDeadline(ctx)
	if err != nil {
		return nil, err
	}

	var earliest *time.Time
	if wnd != nil && wnd.Deadline != nil {
		earliest = wnd.Deadline
	}
	if snd != nil && snd.Deadline != nil {
		if earliest == nil || snd.Deadline.Before(*earliest) {
			earliest = snd.Deadline
		}
	}
	return earliest, nil
}

// dispatchDue queues every due window open, window expiry, and session
// expiry onto the worker pool, skipping anything already in flight.
func (s *Sweeper) dispatchDue(ctx context.Context) error {
	dueOpen, err := s.windows.FetchWindowsDueForOpen(ctx, s.batchSize)
	if err != nil {
		return err
	}
	dueClose, err := s.windows.FetchWindowsDueForExpiry(ctx, s.batchSize)
	if err != nil {
		return err
	}
	dueSessions, err := s.sessions.FetchSessionsDueForExpiry(ctx, s.batchSize)
	if err != nil {
		return err
	}

	tasks := make([]task, 0, len(dueOpen)+len(dueClose)+len(dueSessions))
	for _, id := range dueOpen {
		tasks = append(tasks, task{kind: taskOpenWindow, id: id})
	}
	for _, id := range dueClose {
		tasks = append(tasks, task{kind: taskExpireWindow, id: id})
	}
	for _, id := range dueSessions {
		tasks = append(tasks, task{kind: taskExpireSession, id: id})
	}

	if len(tasks) == 0 {
		return nil
	}
	log.Info().
		Int("count_due", len(tasks)).
		Int32("batch_size", s.batchSize).
		Str("instance", s.instanceID).
		Msg("processing due work")

	for _, t := range tasks {
		s.inFlightMu.Lock()
		if s.inFlight[t] {
			s.inFlightMu.Unlock()
			log.Debug().
				Str("kind", string(t.kind)).
				Str("id", t.id.String()).
				Str("instance", s.instanceID).
				Msg("skipping task already in flight")
			continue
		}
		s.inFlight[t] = true
		s.inFlightMu.Unlock()

		select {
		case <-ctx.Done():
			s.inFlightMu.Lock()
			delete(s.inFlight, t)
			s.inFlightMu.Unlock()
			log.Info().Str("instance", s.instanceID).Msg("shutdown while queueing due work")
			return ctx.Err()
		case s.workCh <- t:
			log.Debug().
				Str("kind", string(t.kind)).
				Str("id", t.id.String()).
				Str("instance", s.instanceID).
				Msg("queued task for worker")
		}
	}
	return nil
}

// worker processes due tasks from the work channel.
func (s *Sweeper) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Info().
		Str("instance", s.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case t, ok := <-s.workCh:
			if !ok {
				log.Info().
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("work channel closed, worker shutting down")
				return
			}

			if err := s.handle(ctx, t); err != nil {
				log.Error().
					Err(err).
					Str("kind", string(t.kind)).
					Str("id", t.id.String()).
					Str("instance", s.instanceID).
					Int("worker_id", workerID).
					Msg("worker task failed")
			}

			s.inFlightMu.Lock()
			delete(s.inFlight, t)
			s.inFlightMu.Unlock()
		}
	}
}

func (s *Sweeper) handle(ctx context.Context, t task) error {
	switch t.kind {
	case taskOpenWindow:
		_, err := s.windows.AutoOpen(ctx, t.id)
		return err
	case taskExpireWindow:
		_, err := s.windows.AutoExpire(ctx, t.id)
		return err
	case taskExpireSession:
		_, err := s.sessions.ExpireSession(ctx, t.id)
		return err
	}
	return nil
}
