package gradebook

import (
	"context"
	"time"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// LineItemRecord maps a quiz to its column in the external gradebook.
type LineItemRecord struct {
	QuizID      string
	Label       string
	ScoreMax    float64
	LineItemURL string // absolute URL
}

// Store: see SQLStore.
type Store interface {
	EventsSince(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
	Cursor(ctx context.Context) (int64, error)
	SetCursor(ctx context.Context, seq int64) error

	QuizTitle(ctx context.Context, quizID string) (string, error)
	FindLineItem(ctx context.Context, quizID string) (LineItemRecord, error)
	UpsertLineItem(ctx context.Context, li LineItemRecord) (LineItemRecord, error)
	// PlatformUserID returns "" when the learner has no mapping.
	PlatformUserID(ctx context.Context, learnerID string) (string, error)

	MarkSyncOK(ctx context.Context, attemptID string) error
	MarkSyncFailed(ctx context.Context, attemptID, lastErr string) (retries int, err error)
}

type LineItem struct {
	ID, Label, ResourceID string
	ScoreMaximum          float64
}

type CreateLineItemReq struct {
	Label        string
	ScoreMaximum float64
	ResourceID   string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Comment                                   string
	Timestamp                                 time.Time
}

// AGSClient speaks the LTI Assignment and Grade Services line item API.
type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
