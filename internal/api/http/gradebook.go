package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/gradebook"
)

// LearnerMapper links local learners to platform user IDs.
type LearnerMapper interface {
	MapLearner(ctx context.Context, learnerID, platformSub string) error
}

// POST /gradebook/resync  publishes pending attempts now
func GradebookResyncHandler(s *gradebook.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.RunOnce(r.Context())
		if err != nil {
			respondJSON(w, http.StatusBadGateway, map[string]any{"published": n, "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "published": n})
	}
}

type userMapReq struct {
	LearnerID   string `json:"learner_id"`
	PlatformSub string `json:"platform_sub"`
}

// PUT /gradebook/user-map  { "learner_id": "...", "platform_sub": "..." }
func GradebookUserMapHandler(m LearnerMapper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userMapReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.LearnerID = strings.TrimSpace(req.LearnerID)
		req.PlatformSub = strings.TrimSpace(req.PlatformSub)
		if req.LearnerID == "" || req.PlatformSub == "" {
			http.Error(w, "learner_id and platform_sub required", http.StatusBadRequest)
			return
		}
		if err := m.MapLearner(r.Context(), req.LearnerID, req.PlatformSub); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
