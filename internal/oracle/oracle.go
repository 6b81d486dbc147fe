// Package oracle talks to the generative text endpoint that analyses activities.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable covers every way an oracle call can fail: transport errors, deadlines
// and non-2xx responses. Callers only need errors.Is(err, ErrUnavailable).
var ErrUnavailable = errors.New("oracle unavailable")

// Oracle sends a prompt and returns the raw response text. Implementations do not retry
// or cache; each call is independent.
type Oracle interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// StatusError reports a non-2xx status from the oracle endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned status %d (%s)", e.Status, http.StatusText(e.Status))
}

// Unwrap lets errors.Is match ErrUnavailable.
func (e *StatusError) Unwrap() error { return ErrUnavailable }

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Config selects and parameterises an oracle backend.
type Config struct {
	Backend string // "http" (raw REST envelope) or "genai" (SDK)
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// New builds the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Oracle, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "http":
		return NewHTTPClient(cfg.URL, cfg.Model, cfg.APIKey, cfg.Timeout), nil
	case "genai":
		if cfg.APIKey == "" {
			return nil, errors.New("genai oracle backend requires GEMINI_API_KEY")
		}
		return NewGenAIClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown oracle backend %q", cfg.Backend)
	}
}
