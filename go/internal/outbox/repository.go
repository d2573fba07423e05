package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/exam/events"
	"github.com/proctorhq/examengine/go/internal/sqlutil"
)

// Repository persists outbox events in Postgres. Inserts happen on the
// request path; the relay worker drains unsent rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

func (r *Repository) insert(ctx context.Context, driveID uuid.UUID, eventType string, payload []byte) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO outbox_events (id, drive_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), driveID, eventType, payload,
	); err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func (r *Repository) InsertWindowOpened(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeWindowOpened, payload)
}

func (r *Repository) InsertWindowClosed(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeWindowClosed, payload)
}

func (r *Repository) InsertSessionStarted(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeSessionStarted, payload)
}

func (r *Repository) InsertSessionSubmitted(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeSessionSubmitted, payload)
}

func (r *Repository) InsertSessionDisqualified(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeSessionDisqualified, payload)
}

func (r *Repository) InsertSessionAutoExpired(ctx context.Context, driveID uuid.UUID, payload []byte) error {
	return r.insert(ctx, driveID, events.TypeSessionAutoExpired, payload)
}

// DrainUnsent fetches up to limit unsent events with row locks, hands
// them to publish, and marks the successfully published ones sent, all
// in one transaction. SKIP LOCKED lets multiple relay instances share
// the table without double delivery.
func (r *Repository) DrainUnsent(ctx context.Context, limit int32, publish func(OutboxEvent) error) (int, error) {
	var published int
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, drive_id, event_type, payload, created_at
			FROM outbox_events
			WHERE sent_at IS NULL
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
		}
		evs, err := scanEvents(rows)
		if err != nil {
			return err
		}

		var sentIDs []uuid.UUID
		for _, ev := range evs {
			if err := publish(ev); err != nil {
				continue
			}
			sentIDs = append(sentIDs, ev.ID)
		}
		published = len(sentIDs)

		if len(sentIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox_events
			SET sent_at = now()
			WHERE id = ANY($1)`,
			sentIDs,
		); err != nil {
			return fmt.Errorf("failed to mark outbox events sent: %w", err)
		}
		return nil
	})
	return published, err
}

// CountUnsent reports the relay lag.
func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM outbox_events
		WHERE sent_at IS NULL`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

func scanEvents(rows pgx.Rows) ([]OutboxEvent, error) {
	defer rows.Close()
	var evs []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.DriveID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}
