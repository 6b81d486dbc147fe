package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
)

// Publisher emits recommendation.generated events keyed by user.
type Publisher struct {
	writer Writer
	topic  string
}

// NewPublisher constructs a Publisher writing to topic.
func NewPublisher(writer Writer, topic string) *Publisher {
	return &Publisher{writer: writer, topic: topic}
}

// Publish writes one event for rec.
func (p *Publisher) Publish(ctx context.Context, rec domain.Recommendation, degraded bool) error {
	body, err := json.Marshal(events.RecommendationGenerated{
		RecommendationID: rec.ID,
		ActivityID:       rec.ActivityID,
		UserID:           rec.UserID,
		ActivityType:     string(rec.ActivityType),
		Degraded:         degraded,
		CreatedAt:        rec.CreatedAt,
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(rec.UserID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(events.EventTypeRecommendationGenerated)},
			{Key: "activity_id", Value: []byte(rec.ActivityID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", events.EventTypeRecommendationGenerated, err)
	}
	return nil
}

// Noop discards events; used when no recommendation topic is configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.Recommendation, bool) error { return nil }
