package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/proctorhq/examengine/go/internal/exam/scoring"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/violation"
	"github.com/proctorhq/examengine/go/internal/exam/window"
)

// statusFor maps domain errors onto HTTP status codes. Anything
// unmapped is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, window.ErrWindowNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, scoring.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, window.ErrInvalidWindowBounds),
		errors.Is(err, violation.ErrUnknownViolationKind):
		return http.StatusBadRequest
	case errors.Is(err, window.ErrNotApproved),
		errors.Is(err, window.ErrAlreadyOpen),
		errors.Is(err, window.ErrNotOpen),
		errors.Is(err, session.ErrWindowClosed),
		errors.Is(err, session.ErrWindowNotOpen),
		errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrNoQuestions):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		respondJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func respondValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid field: " + verrs[0].Field()})
		return
	}
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
