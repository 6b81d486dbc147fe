package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/persistence"
)

// Repository provides Postgres-backed persistence for recommendations.
type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.RecommendationRepository = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `SELECT id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at
        FROM recommendations`

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

	const stmt = `INSERT INTO recommendations (id, activity_id, user_id, activity_type, recommendation, improvements, suggestions, safety, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (activity_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, stmt,
		rec.ID,
		rec.ActivityID,
		rec.UserID,
		string(rec.ActivityType),
		rec.Recommendation,
		improvements,
		suggestions,
		safety,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecommendationExists
	}
	observability.RecordRecommendationPersisted("postgres", rec.CreatedAt)
	return nil
}

// GetByActivity returns the recommendation for an activity, or nil when none exists.
func (r *Repository) GetByActivity(ctx context.Context, activityID string) (*domain.Recommendation, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE activity_id=$1`, activityID)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns a user's recommendations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := selectColumns + ` WHERE user_id=$1`

	if cursor != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
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

func scanRecommendation(row pgx.Row) (domain.Recommendation, error) {
	var (
		rec                               domain.Recommendation
		activityType                      string
		improvements, suggestions, safety []byte
	)
	if err := row.Scan(&rec.ID, &rec.ActivityID, &rec.UserID, &activityType, &rec.Recommendation,
		&improvements, &suggestions, &safety, &rec.CreatedAt); err != nil {
		return domain.Recommendation{}, err
	}
	rec.ActivityType = domain.ActivityType(activityType)
	rec.CreatedAt = rec.CreatedAt.UTC()

	for _, field := range []struct {
		raw []byte
		dst *[]string
	}{
		{improvements, &rec.Improvements},
		{suggestions, &rec.Suggestions},
		{safety, &rec.Safety},
	} {
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return domain.Recommendation{}, fmt.Errorf("decode recommendation lists: %w", err)
		}
	}
	return rec, nil
}
