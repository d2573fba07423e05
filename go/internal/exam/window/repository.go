package window

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/models"
)

// Repository persists drive windows in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

const windowColumns = `drive_id, state, scheduled_start, scheduled_end, actual_start, actual_end,
	duration_minutes, opened_by, closed_by, close_reason, auto_opened, created_at, updated_at`

func (r *Repository) CreateWindow(ctx context.Context, req CreateWindowRequest) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO drive_windows (drive_id, state, scheduled_start, scheduled_end, duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+windowColumns,
		req.DriveID, models.WindowStateDraft, req.ScheduledStart.UTC(), req.ScheduledEnd.UTC(), req.DurationMinutes,
	)
	w, err := scanWindow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	return w, nil
}

func (r *Repository) GetWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM drive_windows
		WHERE drive_id = $1`,
		driveID,
	)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to get window: %w", err)
	}
	return w, nil
}

func (r *Repository) ApproveWindow(ctx context.Context, driveID uuid.UUID) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE drive_windows
		SET state = $2, updated_at = now()
		WHERE drive_id = $1 AND state = $3
		RETURNING `+windowColumns,
		driveID, models.WindowStateApproved, models.WindowStateDraft,
	)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to approve window: %w", err)
	}
	return w, nil
}

// MarkOpened sets actual_start only when the window is approved and not
// yet opened. The conditional update is what makes concurrent opens and
// open/close races resolve to exactly one winner.
func (r *Repository) MarkOpened(ctx context.Context, params OpenParams) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE drive_windows
		SET state = $2, actual_start = $3, opened_by = $4, auto_opened = $5, updated_at = now()
		WHERE drive_id = $1 AND actual_start IS NULL AND state = $6
		RETURNING `+windowColumns,
		params.DriveID, models.WindowStateOpen, params.OpenedAt.UTC(), params.Actor, params.AutoOpened,
		models.WindowStateApproved,
	)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to mark window opened: %w", err)
	}
	return w, nil
}

// MarkClosed sets actual_end only when the window was actually opened
// and is not yet closed. Windows that never opened go through
// ExpireUnopened instead.
func (r *Repository) MarkClosed(ctx context.Context, params CloseParams) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE drive_windows
		SET state = $2, actual_end = $3, closed_by = $4, close_reason = $5, updated_at = now()
		WHERE drive_id = $1 AND actual_start IS NOT NULL AND actual_end IS NULL
		RETURNING `+windowColumns,
		params.DriveID, models.WindowStateClosed, params.ClosedAt.UTC(), params.Actor, params.Reason,
	)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to mark window closed: %w", err)
	}
	return w, nil
}

// ExpireUnopened closes a window that lapsed without ever opening.
// actual_start stays unset so the record reads as never run.
func (r *Repository) ExpireUnopened(ctx context.Context, params CloseParams) (*models.DriveWindow, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE drive_windows
		SET state = $2, actual_end = $3, closed_by = $4, close_reason = $5, updated_at = now()
		WHERE drive_id = $1 AND actual_start IS NULL AND actual_end IS NULL
		RETURNING `+windowColumns,
		params.DriveID, models.WindowStateClosed, params.ClosedAt.UTC(), params.Actor, params.Reason,
	)
	w, err := scanWindow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to expire unopened window: %w", err)
	}
	return w, nil
}

func (r *Repository) FetchWindowsDueForOpen(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT drive_id
		FROM drive_windows
		WHERE state = $1 AND actual_start IS NULL AND scheduled_start <= $2 AND scheduled_end > $2
		ORDER BY scheduled_start
		LIMIT $3`,
		models.WindowStateApproved, now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch windows due for open: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *Repository) FetchWindowsDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT drive_id
		FROM drive_windows
		WHERE actual_end IS NULL
		  AND scheduled_end <= $1
		  AND state IN ($2, $3)
		  AND (actual_start IS NULL OR auto_opened)
		ORDER BY scheduled_end
		LIMIT $4`,
		now.UTC(), models.WindowStateApproved, models.WindowStateOpen, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch windows due for expiry: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FetchNextDeadline returns the soonest pending auto-open or auto-expiry
// instant across all windows, or nil when nothing is scheduled.
func (r *Repository) FetchNextDeadline(ctx context.Context, now time.Time) (*NextDeadline, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT drive_id, deadline FROM (
			SELECT drive_id, scheduled_start AS deadline
			FROM drive_windows
			WHERE state = $1 AND actual_start IS NULL AND scheduled_end > $2
			UNION ALL
			SELECT drive_id, scheduled_end AS deadline
			FROM drive_windows
			WHERE actual_end IS NULL AND state IN ($1, $3)
			  AND (actual_start IS NULL OR auto_opened)
		) deadlines
		ORDER BY deadline
		LIMIT 1`,
		models.WindowStateApproved, now.UTC(), models.WindowStateOpen,
	)

	var nd NextDeadline
	var deadline time.Time
	if err := row.Scan(&nd.DriveID, &deadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next window deadline: %w", err)
	}
	nd.Deadline = &deadline
	return &nd, nil
}

// ListWindows returns every drive window, newest schedule first.
func (r *Repository) ListWindows(ctx context.Context) ([]models.DriveWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+windowColumns+`
		FROM drive_windows
		ORDER BY scheduled_start DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	defer rows.Close()

	var windows []models.DriveWindow
	for rows.Next() {
		var w models.DriveWindow
		if err := rows.Scan(
			&w.DriveID, &w.State, &w.ScheduledStart, &w.ScheduledEnd, &w.ActualStart, &w.ActualEnd,
			&w.DurationMinutes, &w.OpenedBy, &w.ClosedBy, &w.CloseReason, &w.AutoOpened,
			&w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func scanWindow(row pgx.Row) (*models.DriveWindow, error) {
	var w models.DriveWindow
	if err := row.Scan(
		&w.DriveID, &w.State, &w.ScheduledStart, &w.ScheduledEnd, &w.ActualStart, &w.ActualEnd,
		&w.DurationMinutes, &w.OpenedBy, &w.ClosedBy, &w.CloseReason, &w.AutoOpened,
		&w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
