package session

import (
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// SubmitPolicy decides when a learner may submit manually. Timer expiry
// always submits regardless of policy.
type SubmitPolicy int

const (
	// SubmitOnLastQuestion allows manual submit only from the final question.
	SubmitOnLastQuestion SubmitPolicy = iota
	// SubmitAnytime allows manual submit from any question.
	SubmitAnytime
)

func (p SubmitPolicy) String() string {
	switch p {
	case SubmitAnytime:
		return "anytime"
	default:
		return "last"
	}
}

func ParseSubmitPolicy(s string) (SubmitPolicy, error) {
	switch s {
	case "", "last":
		return SubmitOnLastQuestion, nil
	case "anytime":
		return SubmitAnytime, nil
	}
	return SubmitOnLastQuestion, fmt.Errorf("unknown submit policy %q", s)
}

// Navigator holds the current question index and the selection map for
// one attempt.
type Navigator struct {
	questions []quiz.Question
	index     int
	selected  quiz.Selections
}

func NewNavigator(questions []quiz.Question) *Navigator {
	return &Navigator{questions: questions, selected: quiz.Selections{}}
}

// Select records optionID as the single answer for questionID, replacing
// any earlier choice.
func (n *Navigator) Select(questionID, optionID string) error {
	for _, q := range n.questions {
		if q.ID != questionID {
			continue
		}
		if _, ok := q.Option(optionID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
		}
		n.selected[questionID] = optionID
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
}

// Advance moves forward one question; it is a no-op on the last one.
func (n *Navigator) Advance() bool {
	if n.index >= len(n.questions)-1 {
		return false
	}
	n.index++
	return true
}

// Retreat moves back one question; it is a no-op on the first one.
func (n *Navigator) Retreat() bool {
	if n.index <= 0 {
		return false
	}
	n.index--
	return true
}

func (n *Navigator) Index() int    { return n.index }
func (n *Navigator) Count() int    { return len(n.questions) }
func (n *Navigator) Answered() int { return len(n.selected) }
func (n *Navigator) OnLast() bool  { return n.index == len(n.questions)-1 }

// AllAnswered is true when every question has exactly one selection.
func (n *Navigator) AllAnswered() bool {
	if len(n.selected) != len(n.questions) {
		return false
	}
	for _, q := range n.questions {
		if _, ok := n.selected[q.ID]; !ok {
			return false
		}
	}
	return true
}

func (n *Navigator) Current() quiz.Question { return n.questions[n.index] }

func (n *Navigator) SelectedFor(questionID string) string { return n.selected[questionID] }

// CanSubmit reports whether a manual submit is allowed under p.
func (n *Navigator) CanSubmit(p SubmitPolicy) bool {
	if p == SubmitAnytime {
		return true
	}
	return n.OnLast()
}

// Selections returns a copy of the selection map.
func (n *Navigator) Selections() quiz.Selections {
	out := make(quiz.Selections, len(n.selected))
	for k, v := range n.selected {
		out[k] = v
	}
	return out
}

func (n *Navigator) Reset() {
	n.index = 0
	n.selected = quiz.Selections{}
}
