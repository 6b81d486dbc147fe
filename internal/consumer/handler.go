package consumer

import (
	"context"
	"errors"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/recommender"
)

// Pipeline turns one activity into a persisted recommendation.
type Pipeline interface {
	Process(ctx context.Context, event domain.ActivityEvent) (recommender.Outcome, error)
}

// ActivityHandler decodes activity.created payloads and feeds them to the pipeline.
type ActivityHandler struct {
	pipeline Pipeline
	logger   *logger.Logger
}

var _ Handler = (*ActivityHandler)(nil)

// NewActivityHandler builds an ActivityHandler.
func NewActivityHandler(pipeline Pipeline, l *logger.Logger) *ActivityHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &ActivityHandler{pipeline: pipeline, logger: l}
}

// Handle implements Handler. Payloads that cannot enter the pipeline are rejected and
// reported as handled; pipeline failures are returned so the processor counts them.
func (h *ActivityHandler) Handle(ctx context.Context, msg Message) error {
	if eventType := msg.Headers["event_type"]; eventType != "" && eventType != events.EventTypeActivityCreated {
		RecordRejected(msg, "unsupported_event_type")
		h.logger.Debug("ignoring event", "topic", msg.Topic, "offset", msg.Offset, "event_type", eventType)
		return nil
	}

	event, err := events.DecodeActivity(msg.Payload)
	if err != nil {
		reason := "malformed_payload"
		if errors.Is(err, events.ErrMissingIdentifier) {
			reason = "missing_identifier"
		}
		RecordRejected(msg, reason)
		h.logger.Warn("rejecting activity event",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"reason", reason,
			"error", err,
		)
		return nil
	}

	log := h.logger.With(
		"activity_id", event.ID,
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	out, err := h.pipeline.Process(ctx, event)
	if err != nil {
		log.Error("recommendation pipeline failed",
			"stage", recommender.StageFailed,
			"failed_at", recommender.FailedStage(err),
			"error", err,
		)
		return err
	}
	if out.Duplicate {
		log.Info("duplicate delivery acknowledged")
	}
	return nil
}
