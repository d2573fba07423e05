package gateway

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/window"
	"github.com/proctorhq/examengine/go/internal/models"
)

func (g *Gateway) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	var req createWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}
	driveID, err := uuid.Parse(req.DriveID)
	if err != nil {
		respondValidationError(w, err)
		return
	}

	created, err := g.windows.CreateWindow(r.Context(), window.CreateWindowRequest{
		DriveID:         driveID,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (g *Gateway) handleApproveWindow(w http.ResponseWriter, r *http.Request) {
	driveID, err := uuid.Parse(r.PathValue("drive_id"))
	if err != nil {
		respondValidationError(w, err)
		return
	}
	approved, err := g.windows.Approve(r.Context(), driveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, approved)
}

func (g *Gateway) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	driveID, err := uuid.Parse(r.PathValue("drive_id"))
	if err != nil {
		respondValidationError(w, err)
		return
	}
	var req openWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	opened, err := g.windows.OpenWindow(r.Context(), driveID, req.Actor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, opened)
}

func (g *Gateway) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	driveID, err := uuid.Parse(r.PathValue("drive_id"))
	if err != nil {
		respondValidationError(w, err)
		return
	}
	var req closeWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	closed, err := g.windows.CloseWindow(r.Context(), driveID, req.Actor, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, closed)
}

func (g *Gateway) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	driveID, err := uuid.Parse(r.PathValue("drive_id"))
	if err != nil {
		respondValidationError(w, err)
		return
	}
	win, err := g.windows.GetWindow(r.Context(), driveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, win)
}

func (g *Gateway) handleExamStatus(w http.ResponseWriter, r *http.Request) {
	driveID, err := uuid.Parse(r.PathValue("drive_id"))
	if err != nil {
		respondValidationError(w, err)
		return
	}
	st, err := g.status.GetExamStatus(r.Context(), driveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (g *Gateway) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := g.sessions.Start(r.Context(), id.StudentID, id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (g *Gateway) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	answers := make([]models.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		qid, err := uuid.Parse(a.QuestionID)
		if err != nil {
			respondValidationError(w, err)
			return
		}
		answers = append(answers, models.Answer{
			QuestionID:      qid,
			SelectedOption:  a.SelectedOption,
			MarkedForReview: a.MarkedForReview,
		})
	}

	outcome, err := g.sessions.Submit(r.Context(), id.StudentID, id.DriveID, answers)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (g *Gateway) handleRecordViolation(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	var req recordViolationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondValidationError(w, err)
		return
	}
	if err := g.validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	sess, err := g.sessions.GetByStudentDrive(r.Context(), id.StudentID, id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	outcome, err := g.violations.Record(r.Context(), sess.ID, models.ViolationKind(req.Kind))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	st, err := g.sessions.GetStatus(r.Context(), id.StudentID, id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handleQuestions returns the drive's questions in the student's stored
// randomized order. Correct options never serialize.
func (g *Gateway) handleQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := g.sessions.GetByStudentDrive(r.Context(), id.StudentID, id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	if !sess.Started() {
		respondError(w, session.ErrNotStarted)
		return
	}

	qs, err := g.questions.GetQuestionsByDrive(r.Context(), id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	byID := make(map[uuid.UUID]models.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	ordered := make([]models.Question, 0, len(sess.QuestionOrder))
	for _, qid := range sess.QuestionOrder {
		if q, ok := byID[qid]; ok {
			ordered = append(ordered, q)
		}
	}

	win, err := g.windows.GetWindow(r.Context(), id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, questionsResponse{
		Questions:       ordered,
		ExamStartedAt:   sess.StartedAt.UTC().Format(time.RFC3339),
		ExpectedEnd:     sess.ExpectedEnd.UTC().Format(time.RFC3339),
		DurationMinutes: win.DurationMinutes,
	})
}

func (g *Gateway) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := g.resolver.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := g.sessions.GetByStudentDrive(r.Context(), id.StudentID, id.DriveID)
	if err != nil {
		respondError(w, err)
		return
	}
	res, err := g.scoring.GetResult(r.Context(), sess.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	counts, err := g.violations.Counts(r.Context(), sess.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := resultResponse{
		SessionID:              sess.ID.String(),
		Score:                  res.Score,
		TotalMarks:             res.TotalMarks,
		Percentage:             res.Percentage,
		IsDisqualified:         sess.IsDisqualified,
		DisqualificationReason: sess.DisqualificationReason,
		TotalViolations:        counts.Total(),
		ViolationDetails:       counts,
	}
	if sess.SubmittedAt != nil {
		s := sess.SubmittedAt.UTC().Format(time.RFC3339)
		resp.SubmittedAt = &s
	}
	respondJSON(w, http.StatusOK, resp)
}
