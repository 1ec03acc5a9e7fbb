package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/gradebook"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type mapRecorder struct{ got map[string]string }

func (m *mapRecorder) MapLearner(_ context.Context, learnerID, platformSub string) error {
	m.got[learnerID] = platformSub
	return nil
}

func TestGradebookUserMapHandler(t *testing.T) {
	m := &mapRecorder{got: map[string]string{}}
	h := GradebookUserMapHandler(m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/gradebook/user-map",
		strings.NewReader(`{"learner_id":"u1","platform_sub":"p-1"}`)))
	if rec.Code != http.StatusOK || m.got["u1"] != "p-1" {
		t.Fatalf("map: %d %v", rec.Code, m.got)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/gradebook/user-map", strings.NewReader(`{"learner_id":"u1"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing platform_sub: %d", rec.Code)
	}
}

// brokenEvents fails every read so RunOnce reports an error.
type brokenEvents struct{ gradebook.Store }

func (brokenEvents) Cursor(context.Context) (int64, error) { return 0, nil }
func (brokenEvents) EventsSince(context.Context, int64, int) ([]syncx.Event, error) {
	return nil, errors.New("db gone")
}

func TestGradebookResyncHandler(t *testing.T) {
	s := gradebook.New(brokenEvents{}, nil, "", nil)
	rec := httptest.NewRecorder()
	GradebookResyncHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gradebook/resync", nil))
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "db gone") {
		t.Fatalf("resync: %d %s", rec.Code, rec.Body)
	}
}
