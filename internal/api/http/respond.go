package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, quiz.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quiz.ErrInvalidQuiz):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnknownQuestion), errors.Is(err, session.ErrUnknownOption):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotPresenting),
		errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, session.ErrSubmitNotAllowed),
		errors.Is(err, session.ErrNotReviewing),
		errors.Is(err, session.ErrRetakeNotAllowed),
		errors.Is(err, session.ErrAttemptsExhausted),
		errors.Is(err, session.ErrAlreadyLoaded),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, quiz.ErrDuplicateAttempt):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	body := map[string]any{"error": msg}
	var ve *quiz.ValidationError
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}
	respondJSON(w, code, body)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
