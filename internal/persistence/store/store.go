// Package store opens the recommendation repository selected by configuration.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/persistence/postgres"
	"example.com/recommendation/internal/persistence/sqlite"
)

// Config names the driver and its connection settings.
type Config struct {
	Driver      string // "postgres" or "sqlite"
	PostgresURL string
	SQLitePath  string
}

// Open returns the configured repository and a function releasing its resources.
func Open(ctx context.Context, cfg Config) (domain.RecommendationRepository, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		return postgres.NewRepository(pool), pool.Close, nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
