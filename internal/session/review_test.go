package session

import (
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func TestBuildReview_Lines(t *testing.T) {
	elapsed := 95
	v := quiz.Verdict{
		Percent: 33, Correct: 1, Total: 3,
		Items: []quiz.ReviewItem{
			{QuestionID: "q1", Answered: true, Correct: true},
			{QuestionID: "q2", Answered: true},
			{QuestionID: "q3", SelectedText: quiz.Unanswered},
		},
	}
	rv := BuildReview(v, 70, 2, &elapsed)
	if rv.Summary != "1 of 3 correct" || rv.TimeTaken != "1:35" || rv.AttemptNumber != 2 {
		t.Fatalf("review = %+v", rv)
	}
	want := []string{StatusCorrect, StatusIncorrect, StatusUnanswered}
	for i, l := range rv.Lines {
		if l.Status != want[i] || l.Number != i+1 {
			t.Fatalf("line %d = %+v", i, l)
		}
	}
}

func TestReviewRecord_FromStoredAttempt(t *testing.T) {
	rec := quiz.AttemptRecord{
		AttemptNumber: 3, ScorePercent: 50, Passed: false,
		Review: []quiz.ReviewItem{{Answered: true, Correct: true}, {Answered: true}},
	}
	rv := ReviewRecord(rec, 70)
	if rv.Summary != "1 of 2 correct" || rv.TimeTaken != "" || rv.PassingScore != 70 {
		t.Fatalf("review = %+v", rv)
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int]string{0: "0:00", 5: "0:05", 60: "1:00", 599: "9:59", 3600: "1:00:00", 3725: "1:02:05", -3: "0:00"}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Errorf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}
