package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

// SessionAPI serves live quiz sessions out of a Registry.
type SessionAPI struct {
	Bank     quiz.QuestionBank
	Ledger   quiz.Ledger
	Registry *session.Registry
	Options  []session.Option // applied to every new session
	Logger   *log.Logger
}

type sessionResponse struct {
	ID string `json:"id"`
	session.View
}

// MountSessions registers the session routes. Callers must already run
// JWTMiddleware on r.
func MountSessions(r chi.Router, a *SessionAPI) {
	if a.Logger == nil {
		a.Logger = log.Default()
	}
	r.With(rbac.Require("session:start")).
		Post("/lessons/{lessonID}/sessions", a.StartHandler())

	r.Route("/sessions/{sessionID}", func(sr chi.Router) {
		sr.With(rbac.RequireOwnerOr("session:observe", a.isOwner)).
			Get("/", a.GetHandler())

		sr.Group(func(pr chi.Router) {
			pr.Use(rbac.Require("session:play"))
			pr.Post("/answers", a.AnswerHandler())
			pr.Post("/next", a.NextHandler())
			pr.Post("/previous", a.PreviousHandler())
			pr.Post("/submit", a.SubmitHandler())
			pr.Post("/retake", a.RetakeHandler())
			pr.Delete("/", a.CloseHandler())
		})
	})
}

// POST /lessons/{lessonID}/sessions
// Returns the learner's live session for the lesson (200) if one exists.
func (a *SessionAPI) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ok := authmw.Subject(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		lessonID := chi.URLParam(r, "lessonID")
		if id, live, ok := a.Registry.Find(sub, lessonID); ok {
			respondJSON(w, http.StatusOK, sessionResponse{ID: id, View: live.Snapshot()})
			return
		}
		s := session.New(a.Bank, a.Ledger, sub, a.Options...)
		if err := s.Load(r.Context(), lessonID); err != nil {
			s.Close()
			if errors.Is(err, quiz.ErrInvalidQuiz) {
				writeError(w, err)
				return
			}
			a.Logger.Printf("[API] start session lesson=%s learner=%s: %v", lessonID, sub, err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error": "the quiz could not be loaded, please try again",
				"retry": true,
			})
			return
		}
		if s.State() == session.StateAbsent {
			v := s.Snapshot()
			s.Close()
			respondJSON(w, http.StatusNotFound, v)
			return
		}
		id, live, created := a.Registry.Attach(s)
		if !created {
			// a concurrent start won; nothing was written for s
			s.Close()
			respondJSON(w, http.StatusOK, sessionResponse{ID: id, View: live.Snapshot()})
			return
		}
		respondJSON(w, http.StatusCreated, sessionResponse{ID: id, View: s.Snapshot()})
	}
}

// GET /sessions/{sessionID}
func (a *SessionAPI) GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		s, err := a.Registry.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sessionResponse{ID: id, View: s.Snapshot()})
	}
}

// POST /sessions/{sessionID}/answers  { "question_id": "...", "option_id": "..." }
func (a *SessionAPI) AnswerHandler() http.HandlerFunc {
	return a.act(func(r *http.Request, s *session.Session) error {
		var req struct {
			QuestionID string `json:"question_id"`
			OptionID   string `json:"option_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return errBadJSON
		}
		return s.SelectAnswer(req.QuestionID, req.OptionID)
	})
}

func (a *SessionAPI) NextHandler() http.HandlerFunc {
	return a.act(func(_ *http.Request, s *session.Session) error { return s.GoNext() })
}

func (a *SessionAPI) PreviousHandler() http.HandlerFunc {
	return a.act(func(_ *http.Request, s *session.Session) error { return s.GoPrevious() })
}

// POST /sessions/{sessionID}/submit
// A repeated submit returns the current view; the first one already won.
func (a *SessionAPI) SubmitHandler() http.HandlerFunc {
	return a.act(func(r *http.Request, s *session.Session) error {
		_, err := s.Submit(context.WithoutCancel(r.Context()))
		if errors.Is(err, session.ErrAlreadySubmitted) {
			return nil
		}
		return err
	})
}

func (a *SessionAPI) RetakeHandler() http.HandlerFunc {
	return a.act(func(_ *http.Request, s *session.Session) error { return s.Retake() })
}

// DELETE /sessions/{sessionID}
func (a *SessionAPI) CloseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _, ok := a.owned(w, r)
		if !ok {
			return
		}
		if err := a.Registry.Remove(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

var errBadJSON = errors.New("bad json")

// act runs fn against a session the caller owns and responds with the
// resulting view.
func (a *SessionAPI) act(fn func(*http.Request, *session.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, s, ok := a.owned(w, r)
		if !ok {
			return
		}
		if err := fn(r, s); err != nil {
			if errors.Is(err, errBadJSON) {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sessionResponse{ID: id, View: s.Snapshot()})
	}
}

func (a *SessionAPI) owned(w http.ResponseWriter, r *http.Request) (string, *session.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	s, err := a.Registry.Get(id)
	if err != nil {
		writeError(w, err)
		return "", nil, false
	}
	if s.LearnerID() != authmw.SubjectFromContext(r.Context()) {
		rbac.Forbidden(w)
		return "", nil, false
	}
	return id, s, true
}

// isOwner is also true for unknown IDs so the handler can answer 404.
func (a *SessionAPI) isOwner(r *http.Request) bool {
	s, err := a.Registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		return true
	}
	return s.LearnerID() == authmw.SubjectFromContext(r.Context())
}
