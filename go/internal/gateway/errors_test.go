package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/proctorhq/examengine/go/internal/exam/scoring"
	"github.com/proctorhq/examengine/go/internal/exam/session"
	"github.com/proctorhq/examengine/go/internal/exam/violation"
	"github.com/proctorhq/examengine/go/internal/exam/window"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthorized, http.StatusUnauthorized},
		{window.ErrWindowNotFound, http.StatusNotFound},
		{session.ErrSessionNotFound, http.StatusNotFound},
		{scoring.ErrResultNotFound, http.StatusNotFound},
		{window.ErrInvalidWindowBounds, http.StatusBadRequest},
		{violation.ErrUnknownViolationKind, http.StatusBadRequest},
		{window.ErrNotApproved, http.StatusConflict},
		{window.ErrAlreadyOpen, http.StatusConflict},
		{window.ErrNotOpen, http.StatusConflict},
		{session.ErrWindowClosed, http.StatusConflict},
		{session.ErrWindowNotOpen, http.StatusConflict},
		{session.ErrNotStarted, http.StatusConflict},
		{session.ErrNoQuestions, http.StatusConflict},
		{errors.New("database exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	// Wrapped domain errors still map.
	wrapped := fmt.Errorf("open failed: %w", window.ErrAlreadyOpen)
	if got := statusFor(wrapped); got != http.StatusConflict {
		t.Errorf("statusFor(wrapped) = %d, want %d", got, http.StatusConflict)
	}
}

func TestRespondErrorMasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, errors.New("password=hunter2 leaked into error"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := rec.Body.String(); body != "{\"error\":\"internal error\"}\n" {
		t.Errorf("body = %q, internal detail leaked", body)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/session/status", nil)
	if got := bearerToken(r); got != "" {
		t.Errorf("token without headers = %q, want empty", got)
	}

	r.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(r); got != "abc123" {
		t.Errorf("bearer token = %q, want abc123", got)
	}

	r.Header.Del("Authorization")
	r.Header.Set("X-Exam-Token", "xyz789")
	if got := bearerToken(r); got != "xyz789" {
		t.Errorf("fallback token = %q, want xyz789", got)
	}

	// Authorization wins over the fallback header.
	r.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(r); got != "abc123" {
		t.Errorf("token precedence = %q, want abc123", got)
	}
}
