package recommender

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/analysis"
	"example.com/recommendation/internal/dedupe"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/oracle"
	"example.com/recommendation/internal/persistence/sqlite"
)

var fixedNow = time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC)

func runningEvent() domain.ActivityEvent {
	return domain.ActivityEvent{
		ID:             "a1",
		UserID:         "u1",
		Type:           domain.ActivityTypeRunning,
		DurationMin:    30,
		CaloriesBurned: 300,
		Metrics:        map[string]any{"avgSpeed": "10km/h"},
	}
}

func newTestRecommender(o oracle.Oracle, repo domain.RecommendationRepository, opts ...Option) *Recommender {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "rec-1" }),
	}
	return New(o, repo, append(base, opts...)...)
}

func TestProcessFencedAnswerEndToEnd(t *testing.T) {
	answer := "Here you go:\n```json\n{\"analysis\":{\"overall\":\"Good pace\"},\"improvements\":[{\"area\":\"Pace\",\"recommendation\":\"Slow down\"}],\"suggestions\":[],\"safety\":[\"Drink water\"]}\n```"
	o := &stubOracle{answer: answer}
	repo := &memoryRepo{}
	pub := &recordingPublisher{}

	rec := newTestRecommender(o, repo, WithPublisher(pub))
	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.False(t, out.Duplicate)
	require.False(t, out.Degraded)

	want := domain.Recommendation{
		ID:             "rec-1",
		ActivityID:     "a1",
		UserID:         "u1",
		ActivityType:   domain.ActivityTypeRunning,
		Recommendation: "Overall:Good pace\n\n",
		Improvements:   []string{"Pace: Slow down"},
		Suggestions:    []string{"No specific suggestions provided"},
		Safety:         []string{"Drink water"},
		CreatedAt:      fixedNow,
	}
	require.Len(t, repo.saved, 1)
	if diff := cmp.Diff(want, repo.saved[0]); diff != "" {
		t.Fatalf("persisted recommendation mismatch (-want +got):\n%s", diff)
	}
	require.Contains(t, o.lastPrompt, `"10km/h"`)
	require.Len(t, pub.published, 1)
	require.False(t, pub.degraded[0])
}

func TestProcessPlainProsePersistsDefault(t *testing.T) {
	repo := &memoryRepo{}
	rec := newTestRecommender(&stubOracle{answer: "I cannot comply."}, repo)

	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.True(t, out.Degraded)
	require.Equal(t, analysis.ReasonNoJSONObject, out.Reason)

	def := analysis.DefaultAnalysis()
	require.Len(t, repo.saved, 1)
	got := repo.saved[0]
	require.Equal(t, def.Narrative, got.Recommendation)
	require.Equal(t, def.Improvements, got.Improvements)
	require.Equal(t, def.Suggestions, got.Suggestions)
	require.Equal(t, def.Safety, got.Safety)
}

func TestProcessOracleFailureDegradePolicy(t *testing.T) {
	repo := &memoryRepo{}
	rec := newTestRecommender(&stubOracle{err: fmt.Errorf("%w: boom", oracle.ErrUnavailable)}, repo)

	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.True(t, out.Degraded)
	require.Equal(t, ReasonOracleUnavailable, out.Reason)
	require.Len(t, repo.saved, 1)
	require.Equal(t, analysis.CanonicalSafetyTips(), repo.saved[0].Safety)
}

func TestProcessOracleFailureSkipPolicy(t *testing.T) {
	repo := &memoryRepo{}
	guard := newFakeGuard()
	rec := newTestRecommender(&stubOracle{err: fmt.Errorf("%w: boom", oracle.ErrUnavailable)}, repo,
		WithFailurePolicy(PolicySkip), WithGuard(guard))

	_, err := rec.Process(context.Background(), runningEvent())
	require.ErrorIs(t, err, oracle.ErrUnavailable)
	require.Equal(t, StageAnalyzed, FailedStage(err))
	require.Empty(t, repo.saved)
	require.Equal(t, []string{"a1"}, guard.released, "failed activity must be claimable again")
}

func TestProcessPersistFailureReleasesGuard(t *testing.T) {
	boom := errors.New("db down")
	repo := &memoryRepo{err: boom}
	guard := newFakeGuard()
	pub := &recordingPublisher{}
	rec := newTestRecommender(&stubOracle{answer: "{}"}, repo, WithGuard(guard), WithPublisher(pub))

	_, err := rec.Process(context.Background(), runningEvent())
	require.ErrorIs(t, err, boom)
	require.Equal(t, StagePersisted, FailedStage(err))
	require.Equal(t, []string{"a1"}, guard.released)
	require.Empty(t, pub.published)
}

func TestProcessSkipsDuplicateActivity(t *testing.T) {
	repo := &memoryRepo{}
	o := &stubOracle{answer: "{}"}
	guard := newFakeGuard()
	rec := newTestRecommender(o, repo, WithGuard(guard))

	_, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)

	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Len(t, repo.saved, 1)
	require.Equal(t, 1, o.calls)
}

func TestProcessStoredActivityIsNotPublishedAgain(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "rec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ids := []string{"rec-A", "rec-B"}
	pub := &recordingPublisher{}
	o := &stubOracle{answer: `{"analysis":{"overall":"Good pace"}}`}
	rec := New(o, repo,
		WithGuard(dedupe.Noop{}),
		WithPublisher(pub),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		}),
	)

	first, err := rec.Process(ctx, runningEvent())
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := rec.Process(ctx, runningEvent())
	require.NoError(t, err)
	require.True(t, second.Duplicate)

	stored, err := repo.GetByActivity(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "rec-A", stored.ID)
	require.Len(t, pub.published, 1)
	require.Equal(t, "rec-A", pub.published[0].ID)
	require.Equal(t, 1, o.calls)
}

func TestProcessInsertConflictIsDuplicate(t *testing.T) {
	repo := &memoryRepo{err: domain.ErrRecommendationExists}
	guard := newFakeGuard()
	pub := &recordingPublisher{}
	rec := newTestRecommender(&stubOracle{answer: `{"analysis":{"overall":"Good pace"}}`}, repo,
		WithGuard(guard), WithPublisher(pub))

	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Empty(t, pub.published)
	require.Empty(t, guard.released)
}

func TestProcessGuardErrorFailsOpen(t *testing.T) {
	repo := &memoryRepo{}
	guard := newFakeGuard()
	guard.claimErr = errors.New("redis unreachable")
	rec := newTestRecommender(&stubOracle{answer: "{}"}, repo, WithGuard(guard))

	out, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.False(t, out.Duplicate)
	require.Len(t, repo.saved, 1)
}

func TestProcessPublishFailureDoesNotFail(t *testing.T) {
	repo := &memoryRepo{}
	pub := &recordingPublisher{err: errors.New("broker down")}
	rec := newTestRecommender(&stubOracle{answer: "{}"}, repo, WithPublisher(pub))

	_, err := rec.Process(context.Background(), runningEvent())
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)
}

func TestGenerateAppliesOracleTimeout(t *testing.T) {
	o := &stubOracle{block: true}
	rec := newTestRecommender(o, nil, WithOracleTimeout(20*time.Millisecond))

	gen, err := rec.Generate(context.Background(), runningEvent())
	require.NoError(t, err)
	require.True(t, gen.Degraded)
	require.Equal(t, ReasonOracleUnavailable, gen.Reason)
}

func TestGenerateCancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := newTestRecommender(&stubOracle{block: true}, nil)

	_, err := rec.Generate(ctx, runningEvent())
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateNeverReturnsEmptyLists(t *testing.T) {
	answers := []string{
		"",
		"{",
		"{}",
		`{"analysis":"nope"}`,
		`{"candidates":[]}`,
		`{"improvements":[{"area":1}],"suggestions":[{}],"safety":[]}`,
	}
	for _, answer := range answers {
		rec := newTestRecommender(&stubOracle{answer: answer}, nil)
		gen, err := rec.Generate(context.Background(), domain.ActivityEvent{ID: "x", UserID: "y"})
		require.NoError(t, err, answer)
		r := gen.Recommendation
		require.NotEmpty(t, r.Recommendation, answer)
		require.NotEmpty(t, r.Improvements, answer)
		require.NotEmpty(t, r.Suggestions, answer)
		require.NotEmpty(t, r.Safety, answer)
	}
}

func TestParseFailurePolicy(t *testing.T) {
	require.Equal(t, PolicySkip, ParseFailurePolicy(" SKIP "))
	require.Equal(t, PolicyDegrade, ParseFailurePolicy("degrade"))
	require.Equal(t, PolicyDegrade, ParseFailurePolicy("bogus"))
}

type stubOracle struct {
	mu         sync.Mutex
	answer     string
	err        error
	block      bool
	calls      int
	lastPrompt string
}

func (o *stubOracle) Ask(ctx context.Context, prompt string) (string, error) {
	o.mu.Lock()
	o.calls++
	o.lastPrompt = prompt
	o.mu.Unlock()
	if o.block {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", oracle.ErrUnavailable, ctx.Err())
	}
	return o.answer, o.err
}

type memoryRepo struct {
	saved []domain.Recommendation
	err   error
}

func (r *memoryRepo) Save(_ context.Context, rec domain.Recommendation) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, rec)
	return nil
}

func (r *memoryRepo) GetByActivity(context.Context, string) (*domain.Recommendation, error) {
	return nil, nil
}

func (r *memoryRepo) ListByUser(context.Context, string, *domain.Cursor, int) ([]domain.Recommendation, *domain.Cursor, error) {
	return nil, nil, nil
}

type fakeGuard struct {
	claimed  map[string]bool
	released []string
	claimErr error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claimed: map[string]bool{}}
}

func (g *fakeGuard) Claim(_ context.Context, id string) (bool, error) {
	if g.claimErr != nil {
		return false, g.claimErr
	}
	if g.claimed[id] {
		return false, nil
	}
	g.claimed[id] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, id string) error {
	delete(g.claimed, id)
	g.released = append(g.released, id)
	return nil
}

type recordingPublisher struct {
	published []domain.Recommendation
	degraded  []bool
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, rec domain.Recommendation, degraded bool) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, rec)
	p.degraded = append(p.degraded, degraded)
	return nil
}
