package quiz

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	quizzes   map[string]Quiz       // by quiz ID
	byLesson  map[string]string     // lesson ID -> quiz ID
	questions map[string][]Question // by quiz ID
	attempts  []AttemptRecord
}

func NewInMemoryStore() Store {
	return &memoryStore{
		quizzes:   map[string]Quiz{},
		byLesson:  map[string]string{},
		questions: map[string][]Question{},
	}
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz, questions []Question) error {
	if err := Validate(q, questions); err != nil {
		return err
	}
	cp := copyQuestions(questions)
	SortQuestions(cp)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes[q.ID] = q
	if q.LessonID != "" {
		m.byLesson[q.LessonID] = q.ID
	}
	m.questions[q.ID] = cp
	return nil
}

func (m *memoryStore) FetchQuiz(_ context.Context, lessonID string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLesson[lessonID]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return m.quizzes[id], nil
}

func (m *memoryStore) FetchQuestions(_ context.Context, quizID string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs, ok := m.questions[quizID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyQuestions(qs), nil
}

func (m *memoryStore) MaxAttemptNumber(_ context.Context, quizID, learnerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, a := range m.attempts {
		if a.QuizID == quizID && a.LearnerID == learnerID && a.AttemptNumber > max {
			max = a.AttemptNumber
		}
	}
	return max, nil
}

func (m *memoryStore) AppendAttempt(_ context.Context, rec AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.QuizID == rec.QuizID && a.LearnerID == rec.LearnerID && a.AttemptNumber == rec.AttemptNumber {
			return ErrDuplicateAttempt
		}
	}
	m.attempts = append(m.attempts, rec)
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptRecord{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.LearnerID != "" && a.LearnerID != opts.LearnerID {
			continue
		}
		out = append(out, a)
	}
	// newest first, same as the SQL store
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []AttemptRecord{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func copyQuestions(in []Question) []Question {
	out := make([]Question, len(in))
	for i, q := range in {
		q.Answers = append([]AnswerOption(nil), q.Answers...)
		out[i] = q
	}
	return out
}
