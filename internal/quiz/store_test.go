package quiz_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

func intp(n int) *int { return &n }

func sampleQuiz() (quiz.Quiz, []quiz.Question) {
	qz := quiz.Quiz{ID: "quiz-1", LessonID: "lesson-1", Title: "Vitals", PassingScore: intp(80), TimeLimitMinutes: intp(5)}
	qs := []quiz.Question{
		{ID: "q2", Position: 2, Prompt: "second", Explanation: "e2", Answers: []quiz.AnswerOption{
			{ID: "q2b", Position: 2, Text: "B", IsCorrect: true},
			{ID: "q2a", Position: 1, Text: "A"},
		}},
		{ID: "q1", Position: 1, Prompt: "first", Answers: []quiz.AnswerOption{
			{ID: "q1a", Position: 1, Text: "A", IsCorrect: true},
			{ID: "q1b", Position: 2, Text: "B"},
		}},
	}
	return qz, qs
}

func runStoreContract(t *testing.T, st quiz.Store) {
	ctx := context.Background()
	qz, qs := sampleQuiz()
	if err := st.PutQuiz(ctx, qz, qs); err != nil {
		t.Fatalf("put quiz: %v", err)
	}

	t.Run("fetch quiz by lesson", func(t *testing.T) {
		got, err := st.FetchQuiz(ctx, "lesson-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != "quiz-1" || got.PassingThreshold() != 80 || got.MaxAttempts != nil {
			t.Fatalf("quiz = %+v", got)
		}
		if s, timed := got.TimeLimitSeconds(); !timed || s != 300 {
			t.Fatalf("time limit = %d %v", s, timed)
		}
		if _, err := st.FetchQuiz(ctx, "lesson-404"); !errors.Is(err, quiz.ErrNotFound) {
			t.Fatalf("missing lesson err = %v", err)
		}
	})

	t.Run("questions ordered", func(t *testing.T) {
		got, err := st.FetchQuestions(ctx, "quiz-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != "q1" || got[1].ID != "q2" {
			t.Fatalf("order = %+v", got)
		}
		if got[1].Answers[0].ID != "q2a" || !got[1].Answers[1].IsCorrect {
			t.Fatalf("answers = %+v", got[1].Answers)
		}
	})

	t.Run("reject invalid quiz", func(t *testing.T) {
		bad := []quiz.Question{{ID: "x", Answers: []quiz.AnswerOption{{ID: "y"}}}}
		if err := st.PutQuiz(ctx, quiz.Quiz{ID: "bad", LessonID: "lesson-bad"}, bad); !errors.Is(err, quiz.ErrInvalidQuiz) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("ledger", func(t *testing.T) {
		n, err := st.MaxAttemptNumber(ctx, "quiz-1", "u1")
		if err != nil || n != 0 {
			t.Fatalf("empty max = %d, %v", n, err)
		}
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		elapsed := 42
		for i := 1; i <= 3; i++ {
			rec := quiz.AttemptRecord{
				ID: "a" + string(rune('0'+i)), QuizID: "quiz-1", LearnerID: "u1", AttemptNumber: i,
				CompletedAt: base.Add(time.Duration(i) * time.Minute), ScorePercent: 50, Passed: false,
				Review: []quiz.ReviewItem{{QuestionID: "q1", SelectedText: quiz.Unanswered, CorrectText: "A"}},
			}
			if i == 2 {
				rec.ElapsedSeconds = &elapsed
			}
			if err := st.AppendAttempt(ctx, rec); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		dup := quiz.AttemptRecord{ID: "dup", QuizID: "quiz-1", LearnerID: "u1", AttemptNumber: 2, CompletedAt: base}
		if err := st.AppendAttempt(ctx, dup); !errors.Is(err, quiz.ErrDuplicateAttempt) {
			t.Fatalf("duplicate err = %v", err)
		}
		if n, _ := st.MaxAttemptNumber(ctx, "quiz-1", "u1"); n != 3 {
			t.Fatalf("max = %d, want 3", n)
		}
		if n, _ := st.MaxAttemptNumber(ctx, "quiz-1", "u2"); n != 0 {
			t.Fatalf("other learner max = %d", n)
		}

		list, err := st.ListAttempts(ctx, quiz.AttemptListOpts{QuizID: "quiz-1", LearnerID: "u1", Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].AttemptNumber != 3 || list[1].AttemptNumber != 2 {
			t.Fatalf("list = %+v", list)
		}
		if list[1].ElapsedSeconds == nil || *list[1].ElapsedSeconds != 42 || list[0].ElapsedSeconds != nil {
			t.Fatal("elapsed seconds not round-tripped")
		}
		if len(list[0].Review) != 1 || list[0].Review[0].SelectedText != quiz.Unanswered {
			t.Fatalf("review snapshot = %+v", list[0].Review)
		}
		page2, _ := st.ListAttempts(ctx, quiz.AttemptListOpts{QuizID: "quiz-1", Limit: 2, Offset: 2})
		if len(page2) != 1 || page2[0].AttemptNumber != 1 {
			t.Fatalf("page 2 = %+v", page2)
		}
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreContract(t, quiz.NewInMemoryStore())
}

func TestSQLStore_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "quiz.db")
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	st := quiz.NewSQLStore(dbh, string(db.DriverSQLite))
	runStoreContract(t, st)

	t.Run("replace question set", func(t *testing.T) {
		qz, qs := sampleQuiz()
		qs = qs[:1]
		if err := st.PutQuiz(ctx, qz, qs); err != nil {
			t.Fatal(err)
		}
		got, err := st.FetchQuestions(ctx, qz.ID)
		if err != nil || len(got) != 1 {
			t.Fatalf("questions after replace = %d, %v", len(got), err)
		}
	})

	t.Run("attempts emit events", func(t *testing.T) {
		evs, err := syncx.NewEventRepo("").Since(ctx, dbh, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) != 3 {
			t.Fatalf("events = %d, want 3", len(evs))
		}
		for _, e := range evs {
			if e.Type != syncx.TypeAttemptRecorded || e.SiteID != "local" {
				t.Fatalf("event = %+v", e)
			}
		}
	})
}
