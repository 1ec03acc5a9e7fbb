package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// QuizWriter is the import side of a quiz.Store.
type QuizWriter interface {
	PutQuiz(ctx context.Context, q quiz.Quiz, questions []quiz.Question) error
}

type quizUpload struct {
	quiz.Quiz
	Questions []quiz.Question `json:"questions"`
}

// POST /quizzes  quiz fields plus "questions": [...]
// Re-importing an ID replaces its question set.
func ImportQuizHandler(store QuizWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var up quizUpload
		if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		up.ID = strings.TrimSpace(up.ID)
		up.LessonID = strings.TrimSpace(up.LessonID)
		if up.ID == "" || up.LessonID == "" {
			http.Error(w, "id and lesson_id required", http.StatusBadRequest)
			return
		}
		if err := store.PutQuiz(r.Context(), up.Quiz, up.Questions); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"status": "ok", "id": up.ID})
	}
}
