package gradebook

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

const cursorName = "gradebook"

type SQLStore struct {
	db     *sql.DB
	events *syncx.EventRepo
	now    func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, events: syncx.NewEventRepo(""), now: time.Now}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) EventsSince(ctx context.Context, after int64, limit int) ([]syncx.Event, error) {
	return s.events.Since(ctx, s.db, after, limit)
}

func (s *SQLStore) Cursor(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM sync_cursors WHERE name=$1`, cursorName).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (s *SQLStore) SetCursor(ctx context.Context, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (name, seq) VALUES ($1,$2)
		ON CONFLICT (name) DO UPDATE SET seq=EXCLUDED.seq`, cursorName, seq)
	return err
}

func (s *SQLStore) QuizTitle(ctx context.Context, quizID string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT title FROM quizzes WHERE id=$1`, quizID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", quiz.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if title == "" {
		title = quizID
	}
	return title, nil
}

func (s *SQLStore) FindLineItem(ctx context.Context, quizID string) (LineItemRecord, error) {
	var li LineItemRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT quiz_id, label, score_max, line_item_url FROM gradebook_line_items WHERE quiz_id=$1`, quizID).
		Scan(&li.QuizID, &li.Label, &li.ScoreMax, &li.LineItemURL)
	return li, err
}

func (s *SQLStore) UpsertLineItem(ctx context.Context, li LineItemRecord) (LineItemRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gradebook_line_items (quiz_id, label, score_max, line_item_url, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (quiz_id) DO UPDATE SET
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url,
			updated_at=EXCLUDED.updated_at`,
		li.QuizID, li.Label, li.ScoreMax, li.LineItemURL, s.now().Unix())
	return li, err
}

func (s *SQLStore) PlatformUserID(ctx context.Context, learnerID string) (string, error) {
	var sub string
	err := s.db.QueryRowContext(ctx, `SELECT platform_sub FROM gradebook_user_map WHERE learner_id=$1`, learnerID).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return sub, err
}

// MapLearner links a local learner to the platform's user ID.
func (s *SQLStore) MapLearner(ctx context.Context, learnerID, platformSub string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gradebook_user_map (learner_id, platform_sub) VALUES ($1,$2)
		ON CONFLICT (learner_id) DO UPDATE SET platform_sub=EXCLUDED.platform_sub`, learnerID, platformSub)
	return err
}

func (s *SQLStore) MarkSyncOK(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grade_sync_status (attempt_id, status, retries, last_error, updated_at)
		VALUES ($1,'ok',0,NULL,$2)
		ON CONFLICT (attempt_id) DO UPDATE SET
			status='ok', last_error=NULL, updated_at=EXCLUDED.updated_at`,
		attemptID, s.now().Unix())
	return err
}

func (s *SQLStore) MarkSyncFailed(ctx context.Context, attemptID, lastErr string) (int, error) {
	var retries int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO grade_sync_status (attempt_id, status, retries, last_error, updated_at)
		VALUES ($1,'failed',1,$2,$3)
		ON CONFLICT (attempt_id) DO UPDATE SET
			status='failed',
			retries=grade_sync_status.retries+1,
			last_error=EXCLUDED.last_error,
			updated_at=EXCLUDED.updated_at
		RETURNING retries`,
		attemptID, lastErr, s.now().Unix()).Scan(&retries)
	return retries, err
}

// SyncStatus reports the last publish outcome for an attempt.
func (s *SQLStore) SyncStatus(ctx context.Context, attemptID string) (status string, retries int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT status, retries FROM grade_sync_status WHERE attempt_id=$1`, attemptID).
		Scan(&status, &retries)
	return
}
