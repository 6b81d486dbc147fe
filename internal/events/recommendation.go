package events

import "time"

// EventTypeRecommendationGenerated is emitted after a recommendation has been persisted.
const EventTypeRecommendationGenerated = "recommendation.generated"

// RecommendationGenerated notifies downstream consumers that a recommendation is available.
type RecommendationGenerated struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	Degraded         bool      `json:"degraded"`
	CreatedAt        time.Time `json:"created_at"`
}
