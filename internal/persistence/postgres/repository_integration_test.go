//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/recommendation/internal/domain"
)

func TestRepositorySaveAndList(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("fitness"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRepository(pool)
	userID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var saved []domain.Recommendation
	for i := 0; i < 3; i++ {
		rec := domain.Recommendation{
			ID:             uuid.NewString(),
			ActivityID:     uuid.NewString(),
			UserID:         userID,
			ActivityType:   domain.ActivityTypeCycling,
			Recommendation: "Overall:Steady\n\n",
			Improvements:   []string{"Cadence: Spin faster"},
			Suggestions:    []string{"No specific suggestions provided"},
			Safety:         []string{"Always warm up before exercise", "Stay hydrated", "Listen to your body"},
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Save(ctx, rec))
		saved = append(saved, rec)
	}

	dup := saved[0]
	dup.ID = uuid.NewString()
	require.ErrorIs(t, repo.Save(ctx, dup), domain.ErrRecommendationExists)

	got, err := repo.GetByActivity(ctx, saved[0].ActivityID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, saved[0].ID, got.ID)
	require.Equal(t, saved[0].Improvements, got.Improvements)
	require.Equal(t, saved[0].Safety, got.Safety)
	require.True(t, saved[0].CreatedAt.Equal(got.CreatedAt))

	missing, err := repo.GetByActivity(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	page, next, err := repo.ListByUser(ctx, userID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, saved[2].ID, page[0].ID)
	require.Equal(t, saved[1].ID, page[1].ID)
	require.NotNil(t, next)

	page, next, err = repo.ListByUser(ctx, userID, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, saved[0].ID, page[0].ID)
	require.Nil(t, next)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_recommendations.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		contents, readErr := os.ReadFile(resolvePath(t, rel))
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
