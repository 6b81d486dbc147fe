// Package domain defines the recommendation model and its read-side service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecommendationNotFound is returned when no recommendation exists for a lookup.
	ErrRecommendationNotFound = errors.New("recommendation not found")
	// ErrRecommendationExists is returned by Save when the activity already has a recommendation.
	ErrRecommendationExists = errors.New("recommendation already exists for activity")
)

// Analysis is the rendered, fully defaulted output of the response parser.
type Analysis struct {
	Narrative    string   `json:"recommendation" yaml:"recommendation"`
	Improvements []string `json:"improvements" yaml:"improvements"`
	Suggestions  []string `json:"suggestions" yaml:"suggestions"`
	Safety       []string `json:"safety" yaml:"safety"`
}

// Recommendation is the persisted, append-only record produced once per activity.
type Recommendation struct {
	ID             string       `json:"id" yaml:"id"`
	ActivityID     string       `json:"activity_id" yaml:"activity_id"`
	UserID         string       `json:"user_id" yaml:"user_id"`
	ActivityType   ActivityType `json:"activity_type" yaml:"activity_type"`
	Recommendation string       `json:"recommendation" yaml:"recommendation"`
	Improvements   []string     `json:"improvements" yaml:"improvements"`
	Suggestions    []string     `json:"suggestions" yaml:"suggestions"`
	Safety         []string     `json:"safety" yaml:"safety"`
	CreatedAt      time.Time    `json:"created_at" yaml:"created_at"`
}

// NewRecommendation assembles a recommendation from the event's identity and an analysis.
// Lists are copied so the record never aliases parser state.
func NewRecommendation(id string, event ActivityEvent, analysis Analysis, createdAt time.Time) Recommendation {
	return Recommendation{
		ID:             id,
		ActivityID:     event.ID,
		UserID:         event.UserID,
		ActivityType:   event.Type,
		Recommendation: analysis.Narrative,
		Improvements:   cloneStrings(analysis.Improvements),
		Suggestions:    cloneStrings(analysis.Suggestions),
		Safety:         cloneStrings(analysis.Safety),
		CreatedAt:      createdAt.UTC(),
	}
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Cursor models the pagination token for recommendation listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// RecommendationRepository captures persistence operations. There is no update or delete.
type RecommendationRepository interface {
	// Save stores rec, or returns ErrRecommendationExists and leaves the stored row untouched.
	Save(ctx context.Context, rec Recommendation) error
	GetByActivity(ctx context.Context, activityID string) (*Recommendation, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error)
}

// Service serves recommendation reads.
type Service struct {
	repo RecommendationRepository
}

// NewService constructs a Service.
func NewService(repo RecommendationRepository) *Service {
	return &Service{repo: repo}
}

// GetByActivity fetches the recommendation generated for an activity.
func (s *Service) GetByActivity(ctx context.Context, activityID string) (*Recommendation, error) {
	rec, err := s.repo.GetByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}

// ListByUser fetches a user's recommendations, newest first, with cursor pagination.
func (s *Service) ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}
