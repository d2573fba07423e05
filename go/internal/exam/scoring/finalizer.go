package scoring

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/clock"
	"github.com/proctorhq/examengine/go/internal/models"
)

// QuestionStore defines what the finalizer needs from the read-only
// question/answer-key store.
type QuestionStore interface {
	GetQuestionsByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Question, error)
}

// ResultRepository defines what the finalizer needs from result storage.
// SaveResult must be an idempotent insert: when a result already exists
// for the session, the stored row wins and is returned unchanged.
type ResultRepository interface {
	GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error)
	SaveResult(ctx context.Context, result models.Result, answers []models.Answer) (*models.Result, error)
}

// App finalizes sessions: it freezes the answer set, scores it against
// the drive's answer key, and persists an immutable result.
type App struct {
	questions QuestionStore
	results   ResultRepository
	clock     clock.Clock
}

// NewApp creates a new scoring App.
func NewApp(questions QuestionStore, results ResultRepository, clk clock.Clock) *App {
	return &App{
		questions: questions,
		results:   results,
		clock:     clk,
	}
}

// Finalize computes and persists the result for a session. Re-finalizing
// an already-finalized session returns the stored result rather than
// recomputing, so a submit racing the expiry sweep cannot change a score.
func (a *App) Finalize(ctx context.Context, session *models.Session, answers []models.Answer) (*models.Result, error) {
	if existing, err := a.results.GetResult(ctx, session.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrResultNotFound) {
		return nil, err
	}

	key, err := a.questions.GetQuestionsByDrive(ctx, session.DriveID)
	if err != nil {
		return nil, err
	}

	score, totalMarks := Score(answers, key)
	result := models.Result{
		SessionID:   session.ID,
		Score:       score,
		TotalMarks:  totalMarks,
		Percentage:  Percentage(score, totalMarks),
		FinalizedAt: a.clock.Now(),
	}

	stored, err := a.results.SaveResult(ctx, result, answers)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Int("score", stored.Score).
		Int("total_marks", stored.TotalMarks).
		Float64("percentage", stored.Percentage).
		Msg("session finalized")
	return stored, nil
}

// GetResult returns the stored result for a session.
func (a *App) GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error) {
	return a.results.GetResult(ctx, sessionID)
}

// Score is a pure function over the frozen answer set and the drive's
// answer key. Total marks sum over every question in the drive, answered
// or not; an unanswered or unknown question scores zero.
func Score(answers []models.Answer, key []models.Question) (score, totalMarks int) {
	byID := make(map[uuid.UUID]models.Question, len(key))
	for _, q := range key {
		totalMarks += q.Points
		byID[q.ID] = q
	}

	for _, ans := range answers {
		if ans.SelectedOption == nil {
			continue
		}
		q, ok := byID[ans.QuestionID]
		if !ok {
			continue
		}
		if strings.EqualFold(*ans.SelectedOption, q.CorrectOption) {
			score += q.Points
		}
	}
	return score, totalMarks
}

// Percentage returns 100*score/totalMarks rounded to two decimals, with
// totalMarks == 0 treated as zero rather than a division error.
func Percentage(score, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	p := float64(score) / float64(totalMarks) * 100
	return math.Round(p*100) / 100
}
