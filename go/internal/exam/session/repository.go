package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/models"
	"github.com/proctorhq/examengine/go/internal/sqlutil"
)

// Repository persists exam sessions in Postgres. One row exists per
// (student, drive); all state transitions are conditional updates so
// concurrent writers cannot double-apply them.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

const sessionColumns = `id, student_id, drive_id, state, started_at, expected_end, submitted_at,
	question_order, is_disqualified, disqualification_reason, created_at, updated_at`

func (r *Repository) EnsureSession(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error) {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO exam_sessions (id, student_id, drive_id, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id, drive_id) DO NOTHING`,
		uuid.New(), studentID, driveID, models.SessionStateNotStarted,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure session: %w", err)
	}
	return r.GetByStudentDrive(ctx, studentID, driveID)
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE id = $1`,
		id,
	)
	return scanSession(row)
}

func (r *Repository) GetByStudentDrive(ctx context.Context, studentID, driveID uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE student_id = $1 AND drive_id = $2`,
		studentID, driveID,
	)
	return scanSession(row)
}

// MarkStarted sets started_at, expected_end, and the question order in
// one transaction that re-reads the drive window FOR SHARE. A start that
// races a window close therefore either commits before the close or
// observes actual_end and fails with ErrWindowClosed; no student is
// admitted between a close decision and its effect.
func (r *Repository) MarkStarted(ctx context.Context, params StartParams) (*models.Session, error) {
	var sess *models.Session
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var actualStart, actualEnd *time.Time
		if err := tx.QueryRow(ctx, `
			SELECT actual_start, actual_end
			FROM drive_windows
			WHERE drive_id = $1
			FOR SHARE`,
			params.DriveID,
		).Scan(&actualStart, &actualEnd); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock window row: %w", err)
		}
		if actualStart == nil {
			return ErrWindowNotOpen
		}
		if actualEnd != nil {
			return ErrWindowClosed
		}

		row := tx.QueryRow(ctx, `
			UPDATE exam_sessions
			SET state = $2, started_at = $3, expected_end = $4, question_order = $5, updated_at = now()
			WHERE id = $1 AND started_at IS NULL
			RETURNING `+sessionColumns,
			params.SessionID, models.SessionStateInProgress,
			params.StartedAt.UTC(), params.ExpectedEnd.UTC(), params.QuestionOrder,
		)
		var err error
		sess, err = scanSession(row)
		if errors.Is(err, ErrSessionNotFound) {
			return ErrStaleTransition
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *Repository) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE exam_sessions
		SET state = $2, submitted_at = $3, updated_at = now()
		WHERE id = $1 AND state = $4
		RETURNING `+sessionColumns,
		id, models.SessionStateSubmitted, at.UTC(), models.SessionStateInProgress,
	)
	sess, err := scanSession(row)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrStaleTransition
	}
	return sess, err
}

func (r *Repository) MarkDisqualified(ctx context.Context, id uuid.UUID, reason string) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE exam_sessions
		SET state = $2, is_disqualified = TRUE, disqualification_reason = $3, updated_at = now()
		WHERE id = $1 AND state IN ($4, $5)
		RETURNING `+sessionColumns,
		id, models.SessionStateDisqualified, reason,
		models.SessionStateNotStarted, models.SessionStateInProgress,
	)
	sess, err := scanSession(row)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrStaleTransition
	}
	return sess, err
}

func (r *Repository) MarkAutoExpired(ctx context.Context, id uuid.UUID, at time.Time) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE exam_sessions
		SET state = $2, updated_at = now()
		WHERE id = $1 AND state = $3 AND expected_end <= $4
		RETURNING `+sessionColumns,
		id, models.SessionStateAutoExpired, models.SessionStateInProgress, at.UTC(),
	)
	sess, err := scanSession(row)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrStaleTransition
	}
	return sess, err
}

func (r *Repository) FetchSessionsDueForExpiry(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM exam_sessions
		WHERE state = $1 AND expected_end <= $2
		ORDER BY expected_end
		LIMIT $3`,
		models.SessionStateInProgress, now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions due for expiry: %w", err)
	}
	defer rows.Close()

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

func (r *Repository) FetchNextDeadline(ctx context.Context) (*NextDeadline, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, expected_end
		FROM exam_sessions
		WHERE state = $1 AND expected_end IS NOT NULL
		ORDER BY expected_end
		LIMIT 1`,
		models.SessionStateInProgress,
	)
	var nd NextDeadline
	var deadline time.Time
	if err := row.Scan(&nd.SessionID, &deadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next session deadline: %w", err)
	}
	nd.Deadline = &deadline
	return &nd, nil
}

func (r *Repository) ListByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM exam_sessions
		WHERE drive_id = $1
		ORDER BY created_at`,
		driveID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var sess models.Session
	if err := row.Scan(
		&sess.ID, &sess.StudentID, &sess.DriveID, &sess.State,
		&sess.StartedAt, &sess.ExpectedEnd, &sess.SubmittedAt,
		&sess.QuestionOrder, &sess.IsDisqualified, &sess.DisqualificationReason,
		&sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &sess, nil
}
