// Package recommender runs the per-activity pipeline: prompt, oracle, parse, build, persist.
//
// Each message moves through received → prompted → analyzed → persisted, or ends in failed.
// Parsing never fails; only oracle transport errors (under the skip policy), persistence
// errors and cancellation surface to the caller, wrapped in a *StageError.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/recommendation/internal/analysis"
	"example.com/recommendation/internal/dedupe"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/oracle"
)

// Pipeline stages, used in logs, metrics and StageError.
const (
	StageReceived  = "received"
	StagePrompted  = "prompted"
	StageAnalyzed  = "analyzed"
	StagePersisted = "persisted"
	StageFailed    = "failed"
)

// ReasonOracleUnavailable marks a default recommendation produced because the oracle failed.
const ReasonOracleUnavailable = "oracle_unavailable"

// FailurePolicy decides what happens when the oracle cannot be reached.
type FailurePolicy string

const (
	// PolicyDegrade persists the default recommendation.
	PolicyDegrade FailurePolicy = "degrade"
	// PolicySkip acknowledges the message without persisting anything.
	PolicySkip FailurePolicy = "skip"
)

// ParseFailurePolicy maps configuration text to a policy, defaulting to PolicyDegrade.
func ParseFailurePolicy(raw string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(PolicySkip)) {
		return PolicySkip
	}
	return PolicyDegrade
}

// StageError reports the stage a message failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or StageFailed when err carries none.
func FailedStage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return StageFailed
}

// Publisher announces persisted recommendations.
type Publisher interface {
	Publish(ctx context.Context, rec domain.Recommendation, degraded bool) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Recommendation, bool) error { return nil }

// Generated is a built, not yet persisted, recommendation.
type Generated struct {
	Recommendation domain.Recommendation
	Degraded       bool
	Reason         string
}

// Outcome summarises one Process call.
type Outcome struct {
	Generated
	Duplicate bool
}

// Option configures a Recommender.
type Option func(*Recommender)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Recommender) { r.log = l }
}

// WithGuard sets the redelivery guard.
func WithGuard(g dedupe.Guard) Option {
	return func(r *Recommender) { r.guard = g }
}

// WithPublisher sets the fan-out publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Recommender) { r.publisher = p }
}

// WithOracleTimeout bounds every oracle call. Zero leaves the caller's deadline alone.
func WithOracleTimeout(d time.Duration) Option {
	return func(r *Recommender) { r.oracleTimeout = d }
}

// WithFailurePolicy sets the oracle failure policy.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(r *Recommender) { r.policy = p }
}

// WithClock overrides the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recommender) { r.now = now }
}

// WithIDGenerator overrides recommendation id generation.
func WithIDGenerator(newID func() string) Option {
	return func(r *Recommender) { r.newID = newID }
}

// Recommender owns the pipeline dependencies. It is safe for concurrent use as long as
// its collaborators are.
type Recommender struct {
	oracle        oracle.Oracle
	repo          domain.RecommendationRepository
	guard         dedupe.Guard
	publisher     Publisher
	log           *logger.Logger
	tracer        trace.Tracer
	oracleTimeout time.Duration
	policy        FailurePolicy
	now           func() time.Time
	newID         func() string
}

// New constructs a Recommender. repo may be nil when only Generate is used.
func New(o oracle.Oracle, repo domain.RecommendationRepository, opts ...Option) *Recommender {
	r := &Recommender{
		oracle:    o,
		repo:      repo,
		guard:     dedupe.Noop{},
		publisher: noopPublisher{},
		log:       logger.NewNop(),
		tracer:    otel.Tracer("example.com/recommendation/internal/recommender"),
		policy:    PolicyDegrade,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate builds a recommendation for event without persisting it. Under PolicyDegrade it
// only fails on cancellation; under PolicySkip an unreachable oracle is returned as an error.
func (r *Recommender) Generate(ctx context.Context, event domain.ActivityEvent) (Generated, error) {
	prompt := analysis.BuildPrompt(event)
	recordStage(StagePrompted)
	r.log.Debug("prompt built", "activity_id", event.ID, "stage", StagePrompted, "prompt_bytes", len(prompt))

	raw, err := r.ask(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil || r.policy == PolicySkip {
			return Generated{}, &StageError{Stage: StageAnalyzed, Err: err}
		}
		r.log.Warn("oracle unavailable, using default recommendation",
			"activity_id", event.ID, "stage", StageAnalyzed, "error", err)
		recordParse(true, ReasonOracleUnavailable)
		rec := domain.NewRecommendation(r.newID(), event, analysis.DefaultAnalysis(), r.now())
		return Generated{Recommendation: rec, Degraded: true, Reason: ReasonOracleUnavailable}, nil
	}

	result := analysis.Parse(raw)
	recordParse(result.Degraded, result.Reason)
	recordStage(StageAnalyzed)
	if result.Degraded {
		r.log.Warn("oracle response unusable, using default recommendation",
			"activity_id", event.ID, "stage", StageAnalyzed, "reason", result.Reason)
	}

	rec := domain.NewRecommendation(r.newID(), event, result.Analysis, r.now())
	return Generated{Recommendation: rec, Degraded: result.Degraded, Reason: result.Reason}, nil
}

func (r *Recommender) ask(ctx context.Context, prompt string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "oracle.ask")
	defer span.End()

	if r.oracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.oracleTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := r.oracle.Ask(ctx, prompt)
	observeOracle(time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle unavailable")
		return "", err
	}
	span.SetAttributes(attribute.Int("oracle.response_bytes", len(raw)))
	return raw, nil
}

// Process runs the full pipeline for one activity and persists the result. A redelivered
// activity that was already claimed or stored is reported as a duplicate and not processed
// or published again.
func (r *Recommender) Process(ctx context.Context, event domain.ActivityEvent) (out Outcome, err error) {
	ctx, span := r.tracer.Start(ctx, "recommendation.process", trace.WithAttributes(
		attribute.String("activity.id", event.ID),
		attribute.String("activity.type", string(event.Type)),
	))
	defer func() {
		if err != nil {
			recordStage(StageFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, FailedStage(err))
		}
		span.End()
	}()

	recordStage(StageReceived)
	r.log.Debug("activity received", "activity_id", event.ID, "user_id", event.UserID, "stage", StageReceived)

	claimed, claimErr := r.guard.Claim(ctx, event.ID)
	switch {
	case claimErr != nil:
		r.log.Warn("redelivery guard unavailable, processing anyway", "activity_id", event.ID, "error", claimErr)
	case !claimed:
		recordDuplicate()
		r.log.Info("activity already processed, skipping", "activity_id", event.ID)
		return Outcome{Duplicate: true}, nil
	}

	release := func() {
		if claimErr != nil {
			return
		}
		if relErr := r.guard.Release(context.WithoutCancel(ctx), event.ID); relErr != nil {
			r.log.Warn("redelivery guard release failed", "activity_id", event.ID, "error", relErr)
		}
	}

	existing, lookupErr := r.repo.GetByActivity(ctx, event.ID)
	switch {
	case lookupErr != nil:
		r.log.Warn("recommendation lookup failed, processing anyway", "activity_id", event.ID, "error", lookupErr)
	case existing != nil:
		recordDuplicate()
		r.log.Info("activity already has a recommendation, skipping", "activity_id", event.ID, "recommendation_id", existing.ID)
		return Outcome{Duplicate: true}, nil
	}

	gen, err := r.Generate(ctx, event)
	if err != nil {
		release()
		return Outcome{}, err
	}

	if err := r.repo.Save(ctx, gen.Recommendation); err != nil {
		if errors.Is(err, domain.ErrRecommendationExists) {
			recordDuplicate()
			r.log.Info("activity already has a recommendation, skipping", "activity_id", event.ID)
			return Outcome{Duplicate: true}, nil
		}
		release()
		return Outcome{}, &StageError{Stage: StagePersisted, Err: err}
	}
	recordStage(StagePersisted)
	span.SetAttributes(attribute.Bool("recommendation.degraded", gen.Degraded))
	r.log.Info("recommendation persisted",
		"activity_id", event.ID,
		"recommendation_id", gen.Recommendation.ID,
		"stage", StagePersisted,
		"degraded", gen.Degraded,
	)

	if pubErr := r.publisher.Publish(ctx, gen.Recommendation, gen.Degraded); pubErr != nil {
		r.log.Warn("recommendation publish failed", "activity_id", event.ID, "error", pubErr)
	}
	return Outcome{Generated: gen}, nil
}
