// Package api exposes read-only HTTP handlers over persisted recommendations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, l *logger.Logger) *Handler {
	if l == nil {
		l = logger.NewNop()
	}
	return &Handler{service: service, logger: l}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/recommendations", h.listRecommendations)
	mux.HandleFunc("/v1/recommendations/activities/", h.recommendationByActivity)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) recommendationByActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	activityID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/recommendations/activities/"), "/")
	if activityID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	rec, err := h.service.GetByActivity(r.Context(), activityID)
	if err != nil {
		if errors.Is(err, domain.ErrRecommendationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
			return
		}
		h.logger.Error("get recommendation failed", "activity_id", activityID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to load recommendation")
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	recs, next, err := h.service.ListByUser(r.Context(), userID, cursor, limit)
	if err != nil {
		h.logger.Error("list recommendations failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "unable to list recommendations")
		return
	}

	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toRecommendationView(rec))
	}
	writeJSON(w, http.StatusOK, ListRecommendationsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// RecommendationView is the wire shape of a recommendation.
type RecommendationView struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activity_id"`
	UserID         string    `json:"user_id"`
	ActivityType   string    `json:"activity_type"`
	Recommendation string    `json:"recommendation"`
	Improvements   []string  `json:"improvements"`
	Suggestions    []string  `json:"suggestions"`
	Safety         []string  `json:"safety"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListRecommendationsResponse packages list results.
type ListRecommendationsResponse struct {
	Items      []RecommendationView `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toRecommendationView(rec domain.Recommendation) RecommendationView {
	return RecommendationView{
		ID:             rec.ID,
		ActivityID:     rec.ActivityID,
		UserID:         rec.UserID,
		ActivityType:   string(rec.ActivityType),
		Recommendation: rec.Recommendation,
		Improvements:   rec.Improvements,
		Suggestions:    rec.Suggestions,
		Safety:         rec.Safety,
		CreatedAt:      rec.CreatedAt,
	}
}
