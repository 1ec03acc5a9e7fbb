package quiz

import (
	"fmt"
	"sort"
	"strings"
)

// FieldError is used to indicate a problem with a single question.
type FieldError struct {
	QuestionID string `json:"question_id,omitempty"`
	Error      string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func (err *ValidationError) Error() string {
	if len(err.Fields) == 0 {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		if f.QuestionID == "" {
			msgs = append(msgs, f.Error)
			continue
		}
		msgs = append(msgs, f.QuestionID+": "+f.Error)
	}
	return err.Err.Error() + ": " + strings.Join(msgs, "; ")
}

func (err *ValidationError) Unwrap() error { return err.Err }

// Validate rejects a question set the engine cannot score safely: no
// questions, duplicate IDs or positions, a question with fewer than two
// options or without exactly one correct option.
func Validate(q Quiz, questions []Question) error {
	var flds []FieldError
	if len(questions) == 0 {
		flds = append(flds, FieldError{Error: "quiz has no questions"})
	}
	if p := q.PassingThreshold(); p < 0 || p > 100 {
		flds = append(flds, FieldError{Error: fmt.Sprintf("passing score %d out of range", p)})
	}
	if q.MaxAttempts != nil && *q.MaxAttempts < 1 {
		flds = append(flds, FieldError{Error: "max attempts must be positive"})
	}

	seenID := map[string]bool{}
	seenPos := map[int]bool{}
	for _, qq := range questions {
		if qq.ID == "" {
			flds = append(flds, FieldError{Error: "question without id"})
			continue
		}
		if seenID[qq.ID] {
			flds = append(flds, FieldError{QuestionID: qq.ID, Error: "duplicate question id"})
		}
		seenID[qq.ID] = true
		if seenPos[qq.Position] {
			flds = append(flds, FieldError{QuestionID: qq.ID, Error: fmt.Sprintf("duplicate position %d", qq.Position)})
		}
		seenPos[qq.Position] = true

		correct := 0
		optIDs := map[string]bool{}
		for _, a := range qq.Answers {
			if a.IsCorrect {
				correct++
			}
			if optIDs[a.ID] {
				flds = append(flds, FieldError{QuestionID: qq.ID, Error: "duplicate option id " + a.ID})
			}
			optIDs[a.ID] = true
		}
		if len(qq.Answers) < 2 {
			flds = append(flds, FieldError{
				QuestionID: qq.ID,
				Error:      fmt.Sprintf("needs at least two options, found %d", len(qq.Answers)),
			})
		}
		if correct != 1 {
			flds = append(flds, FieldError{
				QuestionID: qq.ID,
				Error:      fmt.Sprintf("expected exactly one correct option, found %d", correct),
			})
		}
	}
	if len(flds) > 0 {
		return &ValidationError{Err: ErrInvalidQuiz, Fields: flds}
	}
	return nil
}

// SortQuestions orders questions and their answers by position in place.
func SortQuestions(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	for i := range questions {
		ans := questions[i].Answers
		sort.SliceStable(ans, func(a, b int) bool { return ans[a].Position < ans[b].Position })
	}
}
