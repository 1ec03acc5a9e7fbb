package http

import (
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// GET /attempts?quiz_id=...&learner_id=...&limit=50&offset=0
// RBAC:
// - attempt:view-all may filter by any learner
// - attempt:view-own only sees its own attempts (learner_id is forced to subject)
func ListAttemptsHandler(store quiz.AttemptLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := authmw.Subject(r.Context())
		if !ok || rbac.RoleFromContext(r.Context()) == "" {
			rbac.Forbidden(w)
			return
		}

		q := r.URL.Query()
		learnerID := strings.TrimSpace(q.Get("learner_id"))
		if !rbac.Can(r.Context(), "attempt:view-all") {
			learnerID = sub
		}

		list, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuizID:    strings.TrimSpace(q.Get("quiz_id")),
			LearnerID: learnerID,
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
