package quiz

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("quiz not found")
	ErrInvalidQuiz      = errors.New("invalid quiz configuration")
	ErrDuplicateAttempt = errors.New("attempt number already recorded")
)

// QuestionBank supplies quiz metadata and the ordered question set.
type QuestionBank interface {
	// FetchQuiz returns ErrNotFound when the lesson has no assessment.
	FetchQuiz(ctx context.Context, lessonID string) (Quiz, error)
	// FetchQuestions returns questions ordered by position, each with its
	// answers ordered by position.
	FetchQuestions(ctx context.Context, quizID string) ([]Question, error)
}

// Ledger is the append-only store of completed attempts.
type Ledger interface {
	// MaxAttemptNumber returns 0 when the learner has no recorded attempts.
	MaxAttemptNumber(ctx context.Context, quizID, learnerID string) (int, error)
	AppendAttempt(ctx context.Context, rec AttemptRecord) error
}

type AttemptListOpts struct {
	QuizID    string
	LearnerID string
	Limit     int
	Offset    int
}

// AttemptLister backs dashboards and "my attempts" views.
type AttemptLister interface {
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptRecord, error)
}

// Store is what the SQL and in-memory backends both provide.
type Store interface {
	QuestionBank
	Ledger
	AttemptLister

	PutQuiz(ctx context.Context, q Quiz, questions []Question) error
}
