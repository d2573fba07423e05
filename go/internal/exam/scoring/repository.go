package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/models"
	"github.com/proctorhq/examengine/go/internal/sqlutil"
)

// Repository persists results and frozen answer sets in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

func (r *Repository) GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT session_id, score, total_marks, percentage, finalized_at
		FROM results
		WHERE session_id = $1`,
		sessionID,
	)
	var res models.Result
	if err := row.Scan(&res.SessionID, &res.Score, &res.TotalMarks, &res.Percentage, &res.FinalizedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return &res, nil
}

// SaveResult inserts the result and its answer set in one transaction.
// ON CONFLICT DO NOTHING keeps the first writer's result immutable; the
// stored row is read back so a racing loser returns the winner's result.
func (r *Repository) SaveResult(ctx context.Context, result models.Result, answers []models.Answer) (*models.Result, error) {
	err := sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO results (session_id, score, total_marks, percentage, finalized_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id) DO NOTHING`,
			result.SessionID, result.Score, result.TotalMarks, result.Percentage, result.FinalizedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Lost the race; answers were frozen by the winner.
			return nil
		}

		for _, ans := range answers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO session_answers (session_id, question_id, selected_option, marked_for_review)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (session_id, question_id) DO NOTHING`,
				result.SessionID, ans.QuestionID, ans.SelectedOption, ans.MarkedForReview,
			); err != nil {
				return fmt.Errorf("failed to insert answer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetResult(ctx, result.SessionID)
}

// GetAnswers returns the frozen answer set of a finalized session.
func (r *Repository) GetAnswers(ctx context.Context, sessionID uuid.UUID) ([]models.Answer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT question_id, selected_option, marked_for_review
		FROM session_answers
		WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch answers: %w", err)
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		var ans models.Answer
		if err := rows.Scan(&ans.QuestionID, &ans.SelectedOption, &ans.MarkedForReview); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}
