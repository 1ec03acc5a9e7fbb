package grading

import (
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// ErrNoQuestions guards the percentage division.
var ErrNoQuestions = errors.New("grading: quiz has no questions")

// Score grades single-answer questions against the learner's selections.
// It is pure: the same inputs always give the same Verdict.
func Score(questions []quiz.Question, sel quiz.Selections, passingScore int) (quiz.Verdict, error) {
	if len(questions) == 0 {
		return quiz.Verdict{}, ErrNoQuestions
	}
	v := quiz.Verdict{
		Total: len(questions),
		Items: make([]quiz.ReviewItem, 0, len(questions)),
	}
	for _, q := range questions {
		item, err := gradeOne(q, sel)
		if err != nil {
			return quiz.Verdict{}, err
		}
		if item.Correct {
			v.Correct++
		}
		v.Items = append(v.Items, item)
	}
	v.Percent = Percent(v.Correct, v.Total)
	v.Passed = v.Percent >= passingScore
	return v, nil
}

func gradeOne(q quiz.Question, sel quiz.Selections) (quiz.ReviewItem, error) {
	correct, ok := q.CorrectOption()
	if !ok {
		return quiz.ReviewItem{}, fmt.Errorf("grading: question %s has no correct option: %w", q.ID, quiz.ErrInvalidQuiz)
	}
	item := quiz.ReviewItem{
		QuestionID:   q.ID,
		Position:     q.Position,
		Prompt:       q.Prompt,
		SelectedText: quiz.Unanswered,
		CorrectText:  correct.Text,
		Explanation:  q.Explanation,
	}
	optID, has := sel[q.ID]
	if !has {
		return item, nil
	}
	item.Answered = true
	item.SelectedOptionID = optID
	if chosen, ok := q.Option(optID); ok {
		item.SelectedText = chosen.Text
	}
	item.Correct = optID == correct.ID
	return item, nil
}

// Percent is correct/total as a whole percentage, rounded half up.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	if correct < 0 {
		correct = 0
	}
	if correct > total {
		correct = total
	}
	return (200*correct + total) / (2 * total)
}
