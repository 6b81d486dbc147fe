// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"example.com/recommendation/internal/domain"
)

// EncodeCursor turns the position of the last recommendation on a page into an opaque,
// URL-safe token. Listings run newest first with the id breaking created_at ties, so the
// token carries exactly that pair.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields a nil cursor.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	nanos, id, ok := strings.Cut(string(decoded), ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return &domain.Cursor{CreatedAt: time.Unix(0, ts).UTC(), ID: id}, nil
}

// NextCursor points after the oldest recommendation of a full page. A short page is the
// last one and yields nil.
func NextCursor(page []domain.Recommendation, limit int) *domain.Cursor {
	if limit <= 0 || len(page) < limit {
		return nil
	}
	last := page[len(page)-1]
	return &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
}
