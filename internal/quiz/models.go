package quiz

import "time"

// DefaultPassingScore applies when a quiz has no passing threshold set.
const DefaultPassingScore = 70

// Unanswered is shown in review in place of the selected option text.
const Unanswered = "Not answered"

type AnswerOption struct {
	ID        string `json:"id"`
	Position  int    `json:"position"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

type Question struct {
	ID          string         `json:"id"`
	Position    int            `json:"position"`
	Prompt      string         `json:"prompt"`
	Explanation string         `json:"explanation,omitempty"`
	Answers     []AnswerOption `json:"answers"`
}

// CorrectOption returns the option flagged correct. Callers rely on
// Validate having run, so the first hit is the only one.
func (q Question) CorrectOption() (AnswerOption, bool) {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return a, true
		}
	}
	return AnswerOption{}, false
}

func (q Question) Option(id string) (AnswerOption, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return AnswerOption{}, false
}

// Public strips the correct flags so a question can be shown to a learner.
func (q Question) Public() Question {
	out := q
	out.Explanation = ""
	out.Answers = make([]AnswerOption, len(q.Answers))
	for i, a := range q.Answers {
		a.IsCorrect = false
		out.Answers[i] = a
	}
	return out
}

type Quiz struct {
	ID               string `json:"id"`
	LessonID         string `json:"lesson_id"`
	Title            string `json:"title"`
	PassingScore     *int   `json:"passing_score,omitempty"`      // percent; nil = DefaultPassingScore
	MaxAttempts      *int   `json:"max_attempts,omitempty"`       // nil = unlimited
	TimeLimitMinutes *int   `json:"time_limit_minutes,omitempty"` // nil = untimed

	CreatedAt int64 `json:"created_at,omitempty"`
}

func (q Quiz) PassingThreshold() int {
	if q.PassingScore == nil {
		return DefaultPassingScore
	}
	return *q.PassingScore
}

// TimeLimitSeconds reports the configured time limit, or false when untimed.
func (q Quiz) TimeLimitSeconds() (int, bool) {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return 0, false
	}
	return *q.TimeLimitMinutes * 60, true
}

// ReviewItem is the per-question snapshot kept on an attempt so review can
// be rendered without going back to the question bank.
type ReviewItem struct {
	QuestionID       string `json:"question_id"`
	Position         int    `json:"position"`
	Prompt           string `json:"prompt"`
	SelectedOptionID string `json:"selected_option_id,omitempty"`
	SelectedText     string `json:"selected_text"`
	CorrectText      string `json:"correct_text"`
	Answered         bool   `json:"answered"`
	Correct          bool   `json:"correct"`
	Explanation      string `json:"explanation,omitempty"`
}

type Verdict struct {
	Percent int          `json:"percent"`
	Passed  bool         `json:"passed"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Items   []ReviewItem `json:"items"`
}

// AttemptRecord is immutable once appended to the ledger.
type AttemptRecord struct {
	ID             string       `json:"id"`
	QuizID         string       `json:"quiz_id"`
	LearnerID      string       `json:"learner_id"`
	AttemptNumber  int          `json:"attempt_number"`
	CompletedAt    time.Time    `json:"completed_at"`
	ScorePercent   int          `json:"score_percent"`
	Passed         bool         `json:"passed"`
	Review         []ReviewItem `json:"review"`
	ElapsedSeconds *int         `json:"elapsed_seconds"` // nil when untimed
}

// Selections maps question ID to the selected option ID.
type Selections map[string]string
