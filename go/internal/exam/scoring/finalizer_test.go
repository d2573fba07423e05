package scoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/proctorhq/examengine/go/internal/models"
)

type fakeQuestionStore struct {
	questions []models.Question
}

func (f *fakeQuestionStore) GetQuestionsByDrive(ctx context.Context, driveID uuid.UUID) ([]models.Question, error) {
	return f.questions, nil
}

type fakeResultRepo struct {
	results map[uuid.UUID]*models.Result
	saves   int
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: make(map[uuid.UUID]*models.Result)}
}

func (f *fakeResultRepo) GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error) {
	if res, ok := f.results[sessionID]; ok {
		return res, nil
	}
	return nil, ErrResultNotFound
}

func (f *fakeResultRepo) SaveResult(ctx context.Context, result models.Result, answers []models.Answer) (*models.Result, error) {
	f.saves++
	if stored, ok := f.results[result.SessionID]; ok {
		return stored, nil
	}
	f.results[result.SessionID] = &result
	return &result, nil
}

func question(drive uuid.UUID, correct string, points int) models.Question {
	return models.Question{
		ID:            uuid.New(),
		DriveID:       drive,
		CorrectOption: correct,
		Points:        points,
	}
}

func strPtr(s string) *string { return &s }

func TestScore(t *testing.T) {
	drive := uuid.New()
	q1 := question(drive, "a", 2)
	q2 := question(drive, "b", 3)
	q3 := question(drive, "c", 5)
	key := []models.Question{q1, q2, q3}

	tests := []struct {
		name      string
		answers   []models.Answer
		wantScore int
		wantTotal int
	}{
		{
			name:      "no answers still counts full total",
			answers:   nil,
			wantScore: 0,
			wantTotal: 10,
		},
		{
			name: "correct answers sum points",
			answers: []models.Answer{
				{QuestionID: q1.ID, SelectedOption: strPtr("a")},
				{QuestionID: q2.ID, SelectedOption: strPtr("b")},
			},
			wantScore: 5,
			wantTotal: 10,
		},
		{
			name: "case insensitive match",
			answers: []models.Answer{
				{QuestionID: q3.ID, SelectedOption: strPtr("C")},
			},
			wantScore: 5,
			wantTotal: 10,
		},
		{
			name: "wrong and nil answers score nothing",
			answers: []models.Answer{
				{QuestionID: q1.ID, SelectedOption: strPtr("d")},
				{QuestionID: q2.ID, SelectedOption: nil},
			},
			wantScore: 0,
			wantTotal: 10,
		},
		{
			name: "unknown question ignored",
			answers: []models.Answer{
				{QuestionID: uuid.New(), SelectedOption: strPtr("a")},
			},
			wantScore: 0,
			wantTotal: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, total := Score(tt.answers, key)
			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score, total int
		want         float64
	}{
		{0, 0, 0},
		{5, 0, 0},
		{5, 10, 50},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{10, 10, 100},
	}
	for _, tt := range tests {
		if got := Percentage(tt.score, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestFinalizeStoresOnce(t *testing.T) {
	drive := uuid.New()
	q := question(drive, "a", 4)
	repo := newFakeResultRepo()
	clk := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	app := NewApp(&fakeQuestionStore{questions: []models.Question{q}}, repo, clk)

	sess := &models.Session{ID: uuid.New(), DriveID: drive, State: models.SessionStateSubmitted}
	answers := []models.Answer{{QuestionID: q.ID, SelectedOption: strPtr("A")}}

	first, err := app.Finalize(context.Background(), sess, answers)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if first.Score != 4 || first.TotalMarks != 4 || first.Percentage != 100 {
		t.Fatalf("result = %+v, want score 4/4 at 100%%", first)
	}

	// Re-finalizing with different answers returns the stored result.
	clk.Advance(time.Hour)
	second, err := app.Finalize(context.Background(), sess, nil)
	if err != nil {
		t.Fatalf("Finalize again: %v", err)
	}
	if second.Score != first.Score || !second.FinalizedAt.Equal(first.FinalizedAt) {
		t.Errorf("re-finalize changed the result: %+v vs %+v", second, first)
	}
}

// wrappingResultRepo annotates lookup errors the way a SQL layer would.
type wrappingResultRepo struct {
	*fakeResultRepo
}

func (w *wrappingResultRepo) GetResult(ctx context.Context, sessionID uuid.UUID) (*models.Result, error) {
	res, err := w.fakeResultRepo.GetResult(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return res, nil
}

func TestFinalizeWithWrappedNotFound(t *testing.T) {
	drive := uuid.New()
	q := question(drive, "a", 2)
	repo := &wrappingResultRepo{fakeResultRepo: newFakeResultRepo()}
	app := NewApp(&fakeQuestionStore{questions: []models.Question{q}}, repo, clockwork.NewFakeClock())

	sess := &models.Session{ID: uuid.New(), DriveID: drive, State: models.SessionStateSubmitted}
	res, err := app.Finalize(context.Background(), sess, []models.Answer{{QuestionID: q.ID, SelectedOption: strPtr("a")}})
	if err != nil {
		t.Fatalf("Finalize with wrapped not-found: %v", err)
	}
	if res.Score != 2 || repo.saves != 1 {
		t.Errorf("result = %+v with %d saves, want first finalization to store", res, repo.saves)
	}
}

func TestFinalizeDisqualifiedScoresZero(t *testing.T) {
	drive := uuid.New()
	q := question(drive, "b", 3)
	repo := newFakeResultRepo()
	clk := clockwork.NewFakeClock()
	app := NewApp(&fakeQuestionStore{questions: []models.Question{q}}, repo, clk)

	sess := &models.Session{ID: uuid.New(), DriveID: drive, State: models.SessionStateDisqualified, IsDisqualified: true}
	res, err := app.Finalize(context.Background(), sess, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.Score != 0 || res.TotalMarks != 3 || res.Percentage != 0 {
		t.Errorf("disqualified result = %+v, want 0/3 at 0%%", res)
	}
}
