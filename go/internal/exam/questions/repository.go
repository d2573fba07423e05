package questions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proctorhq/examengine/go/internal/models"
)

// Repository is the read-only question/answer-key store. The engine never
// writes questions; they arrive through the drive-authoring surface, which
// is outside this module.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// GetQuestionsByDrive returns every question of a drive, answer key
// included. Callers serving students must strip CorrectOption.
func (r *Repository) GetQuestionsByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, drive_id, question_text, option_a, option_b, option_c, option_d, correct_option, points
		FROM questions
		WHERE drive_id = $1
		ORDER BY created_at`,
		driveID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(
			&q.ID, &q.DriveID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectOption, &q.Points,
		); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountQuestions returns the number of questions configured for a drive.
func (r *Repository) CountQuestions(ctx context.Context, driveID uuid.UUID) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM questions WHERE drive_id = $1`,
		driveID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}
