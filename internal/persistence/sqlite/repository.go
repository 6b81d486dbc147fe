// Package sqlite stores recommendations in a local SQLite file for single-node and
// development deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS recommendations (
    id             TEXT PRIMARY KEY,
    activity_id    TEXT NOT NULL UNIQUE,
    user_id        TEXT NOT NULL,
    activity_type  TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    improvements   TEXT NOT NULL,
    suggestions    TEXT NOT NULL,
    safety         TEXT NOT NULL,
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recommendations_user_created ON recommendations(user_id, created_at DESC, id DESC);
`

// Repository is a domain.RecommendationRepository on database/sql + modernc sqlite.
type Repository struct {
	db *sql.DB
}

var _ domain.RecommendationRepository = (*Repository)(nil)

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts rec. A second recommendation for the same activity is not stored and
// yields domain.ErrRecommendationExists.
func (r *Repository) Save(ctx context.Context, rec domain.Recommendation) error {
	improvements, err := json.Marshal(rec.Improvements)
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return err
	}
	safety, err := json.Marshal(rec.Safety)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO recommendations
        (id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ActivityID,
		rec.UserID,
		string(rec.ActivityType),
		rec.Recommendation,
		string(improvements),
		string(suggestions),
		string(safety),
		rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	if n == 0 {
		return domain.ErrRecommendationExists
	}
	observability.RecordRecommendationPersisted("sqlite", rec.CreatedAt)
	return nil
}

const selectColumns = `SELECT id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at
        FROM recommendations`

// GetByActivity returns the recommendation for an activity, or nil when none exists.
func (r *Repository) GetByActivity(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE activity_id = ?`, activityID)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns a user's recommendations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	query := selectColumns + ` WHERE user_id = ?`
	args := []any{userID}
	if cursor != nil {
		ts := cursor.CreatedAt.UTC().UnixNano()
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, ts, ts, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row scanner) (domain.Recommendation, error) {
	var (
		rec                               domain.Recommendation
		activityType                      string
		improvements, suggestions, safety string
		createdAt                         int64
	)
	if err := row.Scan(&rec.ID, &rec.ActivityID, &rec.UserID, &activityType, &rec.Recommendation,
		&improvements, &suggestions, &safety, &createdAt); err != nil {
		return domain.Recommendation{}, err
	}
	rec.ActivityType = domain.ActivityType(activityType)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	if err := json.Unmarshal([]byte(improvements), &rec.Improvements); err != nil {
		return domain.Recommendation{}, fmt.Errorf("decode improvements: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &rec.Suggestions); err != nil {
		return domain.Recommendation{}, fmt.Errorf("decode suggestions: %w", err)
	}
	if err := json.Unmarshal([]byte(safety), &rec.Safety); err != nil {
		return domain.Recommendation{}, fmt.Errorf("decode safety: %w", err)
	}
	return rec, nil
}
