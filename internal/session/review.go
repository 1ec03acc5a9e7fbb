package session

import (
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const (
	StatusCorrect    = "correct"
	StatusIncorrect  = "incorrect"
	StatusUnanswered = "unanswered"
)

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID               string       `json:"id"`
	Position         int          `json:"position"`
	Prompt           string       `json:"prompt"`
	Options          []OptionView `json:"options"`
	SelectedOptionID string       `json:"selected_option_id,omitempty"`
}

type ReviewLine struct {
	quiz.ReviewItem
	Number int    `json:"number"`
	Status string `json:"status"`
}

type ReviewView struct {
	AttemptNumber int          `json:"attempt_number"`
	Percent       int          `json:"percent"`
	PassingScore  int          `json:"passing_score"`
	Passed        bool         `json:"passed"`
	Summary       string       `json:"summary"`
	TimeTaken     string       `json:"time_taken,omitempty"`
	Message       string       `json:"message"`
	Lines         []ReviewLine `json:"lines"`
}

// View is everything a host page needs to render the session.
type View struct {
	State         State  `json:"state"`
	LessonID      string `json:"lesson_id"`
	QuizID        string `json:"quiz_id,omitempty"`
	Title         string `json:"title,omitempty"`
	AttemptNumber int    `json:"attempt_number,omitempty"`

	QuestionIndex int           `json:"question_index"`
	QuestionCount int           `json:"question_count"`
	Question      *QuestionView `json:"question,omitempty"`
	Answered      int           `json:"answered"`
	AllAnswered   bool          `json:"all_answered"`
	CanSubmit     bool          `json:"can_submit"`
	SubmitPolicy  string        `json:"submit_policy"`

	RemainingSeconds *int   `json:"remaining_seconds"`
	RemainingLabel   string `json:"remaining_label,omitempty"`

	Verdict      *quiz.Verdict `json:"verdict"`
	Review       *ReviewView   `json:"review,omitempty"`
	CanRetake    bool          `json:"can_retake"`
	AttemptsLeft *int          `json:"attempts_left,omitempty"` // nil = unlimited

	Warning        string `json:"warning,omitempty"`
	PersistPending bool   `json:"persist_pending,omitempty"`
	Notice         string `json:"notice,omitempty"`
}

// Snapshot returns a consistent copy of the session for rendering.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:         s.state,
		LessonID:      s.lessonID,
		QuizID:        s.quiz.ID,
		Title:         s.quiz.Title,
		AttemptNumber: s.attempt,
		SubmitPolicy:  s.cfg.policy.String(),
		Warning:       s.warning,
	}
	if s.loadErr != nil {
		v.Notice = "The quiz could not be loaded. Please try again."
	}
	if s.nav != nil {
		v.QuestionIndex = s.nav.Index()
		v.QuestionCount = s.nav.Count()
		v.Answered = s.nav.Answered()
		v.AllAnswered = s.nav.AllAnswered()
	}
	if s.countdown != nil {
		r := s.countdown.Remaining()
		v.RemainingSeconds = &r
		v.RemainingLabel = FormatClock(r)
	}
	if left := s.governor.AttemptsLeft(s.attempt); left >= 0 && s.state != StateLoading && s.state != StateAbsent {
		v.AttemptsLeft = &left
	}

	switch s.state {
	case StatePresenting:
		v.Question = questionView(s.nav.Current(), s.nav.SelectedFor(s.nav.Current().ID))
		v.CanSubmit = s.nav.CanSubmit(s.cfg.policy)
	case StateReviewing, StateExhausted:
		if s.verdict != nil {
			vd := *s.verdict
			v.Verdict = &vd
			v.CanRetake = s.canRetake
			v.PersistPending = s.pending
			v.Review = s.reviewView()
		}
	}
	return v
}

func questionView(q quiz.Question, selected string) *QuestionView {
	pub := q.Public()
	out := &QuestionView{
		ID:               pub.ID,
		Position:         pub.Position,
		Prompt:           pub.Prompt,
		Options:          make([]OptionView, 0, len(pub.Answers)),
		SelectedOptionID: selected,
	}
	for _, a := range pub.Answers {
		out.Options = append(out.Options, OptionView{ID: a.ID, Text: a.Text})
	}
	return out
}

// reviewView shapes the verdict for display. Must hold s.mu.
func (s *Session) reviewView() *ReviewView {
	rv := BuildReview(*s.verdict, s.quiz.PassingThreshold(), s.attempt, s.record.ElapsedSeconds)
	switch {
	case s.verdict.Passed:
		rv.Message = "Congratulations, you passed."
	case s.canRetake:
		rv.Message = fmt.Sprintf("You need %d%% to pass. You can retake this quiz.", rv.PassingScore)
		if left := s.governor.AttemptsLeft(s.attempt); left > 0 {
			rv.Message = fmt.Sprintf("You need %d%% to pass. You can retake this quiz (%s left).",
				rv.PassingScore, plural(left, "attempt"))
		}
	default:
		rv.Message = fmt.Sprintf("You need %d%% to pass. You have no attempts remaining.", rv.PassingScore)
	}
	return &rv
}

// BuildReview turns a verdict into review lines. It does not read the
// question bank; everything comes from the verdict snapshot, so stored
// attempt records render the same way.
func BuildReview(v quiz.Verdict, passingScore, attemptNumber int, elapsed *int) ReviewView {
	rv := ReviewView{
		AttemptNumber: attemptNumber,
		Percent:       v.Percent,
		PassingScore:  passingScore,
		Passed:        v.Passed,
		Summary:       fmt.Sprintf("%d of %d correct", v.Correct, v.Total),
		Lines:         make([]ReviewLine, 0, len(v.Items)),
	}
	if elapsed != nil {
		rv.TimeTaken = FormatClock(*elapsed)
	}
	for i, it := range v.Items {
		rv.Lines = append(rv.Lines, ReviewLine{ReviewItem: it, Number: i + 1, Status: lineStatus(it)})
	}
	return rv
}

// ReviewRecord renders a stored attempt.
func ReviewRecord(rec quiz.AttemptRecord, passingScore int) ReviewView {
	v := quiz.Verdict{Percent: rec.ScorePercent, Passed: rec.Passed, Total: len(rec.Review), Items: rec.Review}
	for _, it := range rec.Review {
		if it.Correct {
			v.Correct++
		}
	}
	return BuildReview(v, passingScore, rec.AttemptNumber, rec.ElapsedSeconds)
}

func lineStatus(it quiz.ReviewItem) string {
	switch {
	case !it.Answered:
		return StatusUnanswered
	case it.Correct:
		return StatusCorrect
	default:
		return StatusIncorrect
	}
}

// FormatClock renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatClock(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h, m, s := sec/3600, (sec%3600)/60, sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
