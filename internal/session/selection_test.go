package session

import (
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func twoQuestions() []quiz.Question {
	return []quiz.Question{
		{ID: "q1", Position: 1, Answers: []quiz.AnswerOption{{ID: "a", IsCorrect: true}, {ID: "b"}}},
		{ID: "q2", Position: 2, Answers: []quiz.AnswerOption{{ID: "c", IsCorrect: true}, {ID: "d"}}},
	}
}

func TestNavigator_Bounds(t *testing.T) {
	n := NewNavigator(twoQuestions())
	if n.Retreat() {
		t.Fatal("retreat at first question")
	}
	if !n.Advance() || n.Index() != 1 {
		t.Fatal("advance failed")
	}
	if n.Advance() || n.Index() != 1 {
		t.Fatal("advance past last question")
	}
	if !n.OnLast() {
		t.Fatal("OnLast false on last question")
	}
}

func TestNavigator_SelectOverwritesAndCompletes(t *testing.T) {
	n := NewNavigator(twoQuestions())
	if err := n.Select("q1", "b"); err != nil {
		t.Fatal(err)
	}
	if err := n.Select("q1", "a"); err != nil {
		t.Fatal(err)
	}
	if n.SelectedFor("q1") != "a" || n.Answered() != 1 {
		t.Fatalf("selection = %q answered %d", n.SelectedFor("q1"), n.Answered())
	}
	if n.AllAnswered() {
		t.Fatal("AllAnswered with one of two")
	}
	_ = n.Select("q2", "d")
	if !n.AllAnswered() {
		t.Fatal("AllAnswered false with both answered")
	}

	sel := n.Selections()
	sel["q1"] = "tampered"
	if n.SelectedFor("q1") != "a" {
		t.Fatal("Selections must return a copy")
	}

	n.Reset()
	if n.Answered() != 0 || n.Index() != 0 {
		t.Fatal("reset did not clear")
	}
}

func TestNavigator_RejectsForeignIDs(t *testing.T) {
	n := NewNavigator(twoQuestions())
	if err := n.Select("q9", "a"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v", err)
	}
	if err := n.Select("q1", "c"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("err = %v", err)
	}
}

func TestNavigator_SubmitPolicies(t *testing.T) {
	n := NewNavigator(twoQuestions())
	if n.CanSubmit(SubmitOnLastQuestion) {
		t.Fatal("last-question policy allowed submit on first question")
	}
	if !n.CanSubmit(SubmitAnytime) {
		t.Fatal("anytime policy refused submit")
	}
	n.Advance()
	if !n.CanSubmit(SubmitOnLastQuestion) || !n.CanSubmit(SubmitAnytime) {
		t.Fatal("both policies allow submit from the last question")
	}
}

func TestParseSubmitPolicy(t *testing.T) {
	for in, want := range map[string]SubmitPolicy{"": SubmitOnLastQuestion, "last": SubmitOnLastQuestion, "anytime": SubmitAnytime} {
		got, err := ParseSubmitPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseSubmitPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSubmitPolicy("early"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
