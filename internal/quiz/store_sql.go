package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	events *syncx.EventRepo
}

func NewSQLStore(dbh *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: dbh, driver: driver, events: syncx.NewEventRepo("")}
}

var _ Store = (*SQLStore)(nil)

// PutQuiz replaces a quiz and its full question set.
func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz, questions []Question) error {
	if err := Validate(q, questions); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO quizzes (id,lesson_id,title,passing_score,max_attempts,time_limit_minutes,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET lesson_id=EXCLUDED.lesson_id, title=EXCLUDED.title,
			  passing_score=EXCLUDED.passing_score, max_attempts=EXCLUDED.max_attempts,
			  time_limit_minutes=EXCLUDED.time_limit_minutes`,
			q.ID, q.LessonID, q.Title, nullInt(q.PassingScore), nullInt(q.MaxAttempts), nullInt(q.TimeLimitMinutes), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}
		// answer_options cascade with their questions
		if _, err := tx.ExecContext(ctx, `DELETE FROM answer_options WHERE question_id IN (SELECT id FROM questions WHERE quiz_id=$1)`, q.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE quiz_id=$1`, q.ID); err != nil {
			return err
		}
		for _, qq := range questions {
			if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,quiz_id,position,prompt,explanation) VALUES ($1,$2,$3,$4,$5)`,
				qq.ID, q.ID, qq.Position, qq.Prompt, qq.Explanation); err != nil {
				return fmt.Errorf("insert question %s: %w", qq.ID, err)
			}
			for _, a := range qq.Answers {
				if _, err := tx.ExecContext(ctx, `INSERT INTO answer_options (id,question_id,position,text,is_correct) VALUES ($1,$2,$3,$4,$5)`,
					a.ID, qq.ID, a.Position, a.Text, a.IsCorrect); err != nil {
					return fmt.Errorf("insert option %s: %w", a.ID, err)
				}
			}
		}
		return nil
	})
}

func (s *SQLStore) FetchQuiz(ctx context.Context, lessonID string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,lesson_id,title,passing_score,max_attempts,time_limit_minutes,created_at
		FROM quizzes WHERE lesson_id=$1`, lessonID)
	var q Quiz
	var pass, max, limit sql.NullInt64
	if err := row.Scan(&q.ID, &q.LessonID, &q.Title, &pass, &max, &limit, &q.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, err
	}
	q.PassingScore = intPtr(pass)
	q.MaxAttempts = intPtr(max)
	q.TimeLimitMinutes = intPtr(limit)
	return q, nil
}

func (s *SQLStore) FetchQuestions(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT q.id, q.position, q.prompt, q.explanation,
		  a.id, a.position, a.text, a.is_correct
		FROM questions q
		LEFT JOIN answer_options a ON a.question_id = q.id
		WHERE q.quiz_id=$1
		ORDER BY q.position ASC, a.position ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	idx := map[string]int{}
	for rows.Next() {
		var q Question
		var aID, aText sql.NullString
		var aPos sql.NullInt64
		var aCorrect sql.NullBool
		if err := rows.Scan(&q.ID, &q.Position, &q.Prompt, &q.Explanation, &aID, &aPos, &aText, &aCorrect); err != nil {
			return nil, err
		}
		i, ok := idx[q.ID]
		if !ok {
			i = len(out)
			idx[q.ID] = i
			out = append(out, q)
		}
		if aID.Valid {
			out[i].Answers = append(out[i].Answers, AnswerOption{
				ID:        aID.String,
				Position:  int(aPos.Int64),
				Text:      aText.String,
				IsCorrect: aCorrect.Bool,
			})
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) MaxAttemptNumber(ctx context.Context, quizID, learnerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt_number), 0) FROM quiz_attempts
		WHERE quiz_id=$1 AND learner_id=$2`, quizID, learnerID).Scan(&n)
	return n, err
}

// AppendAttempt inserts the record and its AttemptRecorded event in one
// transaction.
func (s *SQLStore) AppendAttempt(ctx context.Context, rec AttemptRecord) error {
	review, err := json.Marshal(rec.Review)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var elapsed any
	if rec.ElapsedSeconds != nil {
		elapsed = *rec.ElapsedSeconds
	}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exist int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM quiz_attempts WHERE quiz_id=$1 AND learner_id=$2 AND attempt_number=$3`,
			rec.QuizID, rec.LearnerID, rec.AttemptNumber).Scan(&exist)
		switch {
		case err == nil:
			return ErrDuplicateAttempt
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO quiz_attempts
			(id,quiz_id,learner_id,attempt_number,completed_at,score_percent,passed,review_json,elapsed_seconds)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rec.ID, rec.QuizID, rec.LearnerID, rec.AttemptNumber, rec.CompletedAt.Unix(),
			rec.ScorePercent, rec.Passed, string(review), elapsed); err != nil {
			return err
		}
		return s.events.Append(ctx, tx, syncx.Event{
			Type:     syncx.TypeAttemptRecorded,
			Key:      rec.ID,
			DataJSON: string(payload),
		})
	})
	if isUniqueViolation(err) {
		return ErrDuplicateAttempt
	}
	return err
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptRecord, error) {
	var where []string
	var args []any
	if opts.QuizID != "" {
		args = append(args, opts.QuizID)
		where = append(where, fmt.Sprintf("quiz_id=$%d", len(args)))
	}
	if opts.LearnerID != "" {
		args = append(args, opts.LearnerID)
		where = append(where, fmt.Sprintf("learner_id=$%d", len(args)))
	}
	q := `SELECT id,quiz_id,learner_id,attempt_number,completed_at,score_percent,passed,review_json,elapsed_seconds FROM quiz_attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	args = append(args, limit, max(opts.Offset, 0))
	q += fmt.Sprintf(" ORDER BY completed_at DESC, attempt_number DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptRecord{}
	for rows.Next() {
		var rec AttemptRecord
		var completed int64
		var review string
		var elapsed sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.QuizID, &rec.LearnerID, &rec.AttemptNumber, &completed,
			&rec.ScorePercent, &rec.Passed, &review, &elapsed); err != nil {
			return nil, err
		}
		rec.CompletedAt = time.Unix(completed, 0).UTC()
		rec.ElapsedSeconds = intPtr(elapsed)
		if err := json.Unmarshal([]byte(review), &rec.Review); err != nil {
			return nil, fmt.Errorf("attempt %s review: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
