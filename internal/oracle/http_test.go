package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPClientReturnsRawEnvelope(t *testing.T) {
	envelope := `{"candidates":[{"content":{"parts":[{"text":"{\"analysis\":{}}"}]}}]}`
	var gotPath, gotKey string
	var gotBody generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(envelope))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL+"/v1beta/", "gemini-2.5-flash", "key-123", time.Second)
	out, err := client.Ask(context.Background(), "analyse this")
	require.NoError(t, err)
	require.Equal(t, envelope, out)
	require.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", gotPath)
	require.Equal(t, "key-123", gotKey)
	require.Len(t, gotBody.Contents, 1)
	require.Equal(t, "analyse this", gotBody.Contents[0].Parts[0].Text)
}

func TestHTTPClientNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "m", "", time.Second)
	_, err := client.Ask(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnavailable)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.Status)
}

func TestHTTPClientDeadlineIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewHTTPClient(srv.URL, "m", "", 5*time.Second)
	_, err := client.Ask(ctx, "p")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClientTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewHTTPClient(url, "m", "", time.Second)
	_, err := client.Ask(context.Background(), "p")
	require.ErrorIs(t, err, ErrUnavailable)
}
