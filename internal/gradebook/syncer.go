package gradebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// ScoreMax is the line item maximum; attempts are published as percentages.
const ScoreMax = 100

type Clock func() time.Time

// Syncer publishes recorded attempts to an external gradebook, reading the
// event log from a persisted cursor.
type Syncer struct {
	Store        Store
	AGS          AGSClient
	LineItemsURL string
	MaxRetries   int // failures before an attempt is skipped
	BatchSize    int
	Now          Clock
	Logger       *log.Logger
}

func New(store Store, ags AGSClient, lineItemsURL string, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	return &Syncer{
		Store: store, AGS: ags, LineItemsURL: lineItemsURL, Now: now,
		MaxRetries: 5, BatchSize: 100, Logger: log.Default(),
	}
}

func (s *Syncer) EnsureLineItem(ctx context.Context, quizID string) (LineItemRecord, error) {
	if li, err := s.Store.FindLineItem(ctx, quizID); err == nil && li.LineItemURL != "" {
		return li, nil
	}
	if s.LineItemsURL == "" {
		return LineItemRecord{}, errors.New("missing lineitems_url")
	}
	title, err := s.Store.QuizTitle(ctx, quizID)
	if err != nil {
		return LineItemRecord{}, fmt.Errorf("quiz: %w", err)
	}

	items, err := s.AGS.ListLineItems(ctx, s.LineItemsURL, map[string]string{"resource_id": quizID})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == quizID {
				return s.Store.UpsertLineItem(ctx, LineItemRecord{
					QuizID: quizID, Label: it.Label, ScoreMax: it.ScoreMaximum, LineItemURL: it.ID,
				})
			}
		}
	}
	created, err := s.AGS.CreateLineItem(ctx, s.LineItemsURL, CreateLineItemReq{
		Label: title, ScoreMaximum: ScoreMax, ResourceID: quizID,
	})
	if err != nil {
		return LineItemRecord{}, fmt.Errorf("create line item: %w", err)
	}
	return s.Store.UpsertLineItem(ctx, LineItemRecord{
		QuizID: quizID, Label: created.Label, ScoreMax: created.ScoreMaximum, LineItemURL: created.ID,
	})
}

// PublishAttempt posts one attempt's score.
func (s *Syncer) PublishAttempt(ctx context.Context, rec quiz.AttemptRecord) error {
	li, err := s.EnsureLineItem(ctx, rec.QuizID)
	if err != nil {
		return err
	}
	userID, err := s.Store.PlatformUserID(ctx, rec.LearnerID)
	if err != nil {
		return err
	}
	if userID == "" {
		userID = rec.LearnerID
	}
	ts := rec.CompletedAt
	if ts.IsZero() {
		ts = s.Now()
	}
	comment := fmt.Sprintf("Attempt %d: not passed", rec.AttemptNumber)
	if rec.Passed {
		comment = fmt.Sprintf("Attempt %d: passed", rec.AttemptNumber)
	}
	return s.AGS.PostScore(ctx, li.LineItemURL, Score{
		UserID: userID, ScoreGiven: float64(rec.ScorePercent), ScoreMaximum: ScoreMax,
		ActivityProgress: "Completed", GradingProgress: "FullyGraded",
		Comment: comment, Timestamp: ts,
	})
}

// RunOnce publishes the next batch of AttemptRecorded events. It stops at
// the first failure so the event is retried on the next run, until it has
// failed MaxRetries times.
func (s *Syncer) RunOnce(ctx context.Context) (published int, err error) {
	after, err := s.Store.Cursor(ctx)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	evs, err := s.Store.EventsSince(ctx, after, s.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read events: %w", err)
	}
	for _, e := range evs {
		if e.Type == syncx.TypeAttemptRecorded {
			var rec quiz.AttemptRecord
			if err := json.Unmarshal([]byte(e.DataJSON), &rec); err != nil {
				s.Logger.Printf("[GRADEBOOK] event %d: skipping bad payload: %v", e.Seq, err)
			} else if err := s.PublishAttempt(ctx, rec); err != nil {
				retries, merr := s.Store.MarkSyncFailed(ctx, rec.ID, err.Error())
				if merr != nil {
					return published, merr
				}
				if retries < s.MaxRetries {
					return published, fmt.Errorf("publish attempt %s: %w", rec.ID, err)
				}
				s.Logger.Printf("[GRADEBOOK] giving up on attempt %s after %d failures: %v", rec.ID, retries, err)
			} else {
				if err := s.Store.MarkSyncOK(ctx, rec.ID); err != nil {
					return published, err
				}
				published++
			}
		}
		if err := s.Store.SetCursor(ctx, e.Seq); err != nil {
			return published, fmt.Errorf("advance cursor: %w", err)
		}
	}
	return published, nil
}

// Run calls RunOnce every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				s.Logger.Printf("[GRADEBOOK] sync: %v", err)
			}
			if n > 0 {
				s.Logger.Printf("[GRADEBOOK] published %d attempts", n)
			}
		}
	}
}
