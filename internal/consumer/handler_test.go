package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/recommender"
)

type stubPipeline struct {
	events []domain.ActivityEvent
	out    recommender.Outcome
	err    error
}

func (p *stubPipeline) Process(_ context.Context, event domain.ActivityEvent) (recommender.Outcome, error) {
	p.events = append(p.events, event)
	return p.out, p.err
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestActivityHandlerDecodesAndProcesses(t *testing.T) {
	pipeline := &stubPipeline{}
	h := NewActivityHandler(pipeline, nil)

	msg := Message{
		Topic:   "activity_events",
		Payload: []byte(`{"id":"a1","userId":"u1","type":"RUNNING","duration":30,"calorieBurned":300,"additionalMetrics":{"avgSpeed":"10km/h"}}`),
		Headers: map[string]string{"event_type": "activity.created"},
	}
	require.NoError(t, h.Handle(context.Background(), msg))
	require.Len(t, pipeline.events, 1)

	event := pipeline.events[0]
	require.Equal(t, "a1", event.ID)
	require.Equal(t, "u1", event.UserID)
	require.Equal(t, domain.ActivityTypeRunning, event.Type)
	require.Equal(t, 30, event.DurationMin)
	require.Equal(t, "10km/h", event.Metric("avgSpeed"))
}

func TestActivityHandlerRejectsMissingIdentifier(t *testing.T) {
	pipeline := &stubPipeline{}
	l, logs := observedLogger()
	h := NewActivityHandler(pipeline, l)

	err := h.Handle(context.Background(), Message{Topic: "activity_events", Payload: []byte(`{"userId":"u1"}`)})
	require.NoError(t, err)
	require.Empty(t, pipeline.events)

	entries := logs.FilterMessage("rejecting activity event").All()
	require.Len(t, entries, 1)
	require.Equal(t, "missing_identifier", entries[0].ContextMap()["reason"])
}

func TestActivityHandlerRejectsMalformedPayload(t *testing.T) {
	pipeline := &stubPipeline{}
	h := NewActivityHandler(pipeline, nil)

	require.NoError(t, h.Handle(context.Background(), Message{Payload: []byte(`not json`)}))
	require.Empty(t, pipeline.events)
}

func TestActivityHandlerIgnoresOtherEventTypes(t *testing.T) {
	pipeline := &stubPipeline{}
	h := NewActivityHandler(pipeline, nil)

	msg := Message{
		Payload: []byte(`{"id":"a1","userId":"u1"}`),
		Headers: map[string]string{"event_type": "activity.state_changed"},
	}
	require.NoError(t, h.Handle(context.Background(), msg))
	require.Empty(t, pipeline.events)
}

func TestActivityHandlerLogsPipelineFailure(t *testing.T) {
	boom := &recommender.StageError{Stage: recommender.StagePersisted, Err: errors.New("db down")}
	pipeline := &stubPipeline{err: boom}
	l, logs := observedLogger()
	h := NewActivityHandler(pipeline, l)

	msg := Message{Topic: "activity_events", Partition: 3, Offset: 42, Payload: []byte(`{"id":"a1","userId":"u1"}`)}
	err := h.Handle(context.Background(), msg)
	require.ErrorIs(t, err, boom)

	entries := logs.FilterMessage("recommendation pipeline failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "a1", fields["activity_id"])
	require.Equal(t, "activity_events", fields["topic"])
	require.EqualValues(t, 3, fields["partition"])
	require.EqualValues(t, 42, fields["offset"])
	require.Equal(t, recommender.StageFailed, fields["stage"])
	require.Equal(t, recommender.StagePersisted, fields["failed_at"])
}
