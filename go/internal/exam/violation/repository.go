package violation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/models"
)

// Repository persists per-session violation counters in Postgres, one
// row per (session, kind).
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// Increment bumps the counter for (session, kind) and returns the new
// count. The upsert is atomic; counts only ever grow.
func (r *Repository) Increment(ctx context.Context, sessionID uuid.UUID, kind models.ViolationKind) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `
		INSERT INTO session_violations (session_id, kind, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (session_id, kind) DO UPDATE SET count = session_violations.count + 1
		RETURNING count`,
		sessionID, kind,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment violation count: %w", err)
	}
	return count, nil
}

// GetCounts returns every kind's count for a session. Kinds never
// recorded are present with a zero count so clients always see the full
// table.
func (r *Repository) GetCounts(ctx context.Context, sessionID uuid.UUID) (models.ViolationCounts, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, count
		FROM session_violations
		WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch violation counts: %w", err)
	}
	defer rows.Close()

	counts := make(models.ViolationCounts, len(models.ViolationKinds))
	for _, kind := range models.ViolationKinds {
		counts[kind] = 0
	}
	for rows.Next() {
		var kind models.ViolationKind
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}
