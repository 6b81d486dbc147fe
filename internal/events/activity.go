// Package events defines the wire payloads consumed and emitted by the recommendation service.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"example.com/recommendation/internal/domain"
)

var (
	// ErrMalformedPayload marks payloads that are not a decodable activity object.
	ErrMalformedPayload = errors.New("malformed activity payload")
	// ErrMissingIdentifier marks payloads without an activity or user identifier.
	ErrMissingIdentifier = errors.New("activity payload missing identifier")
)

// EventTypeActivityCreated is the header value carried by inbound activity events.
const EventTypeActivityCreated = "activity.created"

// ActivityCreated is the inbound activity message. Both the camelCase fields used by the
// activity API and the snake_case fields of the platform outbox are accepted. Fields are kept
// raw so a wrongly typed value degrades to its zero value instead of rejecting the event.
type ActivityCreated struct {
	ID                json.RawMessage `json:"id,omitempty"`
	UserID            json.RawMessage `json:"userId,omitempty"`
	Type              json.RawMessage `json:"type,omitempty"`
	Duration          json.RawMessage `json:"duration,omitempty"`
	CalorieBurned     json.RawMessage `json:"calorieBurned,omitempty"`
	StartTime         json.RawMessage `json:"startTime,omitempty"`
	AdditionalMetrics json.RawMessage `json:"additionalMetrics,omitempty"`

	ActivityID   json.RawMessage `json:"activity_id,omitempty"`
	UserIDAlt    json.RawMessage `json:"user_id,omitempty"`
	ActivityType json.RawMessage `json:"activity_type,omitempty"`
	DurationMin  json.RawMessage `json:"duration_min,omitempty"`
	StartedAt    json.RawMessage `json:"started_at,omitempty"`
}

// DecodeActivity strips optional schema-registry framing, decodes the payload and validates
// that both identifiers are present. Other fields fall back to zero values when missing or
// of the wrong type.
func DecodeActivity(payload []byte) (domain.ActivityEvent, error) {
	payload = StripWireFormat(payload)

	var msg ActivityCreated
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	evt := domain.ActivityEvent{
		ID:             coalesce(rawString(msg.ID), rawString(msg.ActivityID)),
		UserID:         coalesce(rawString(msg.UserID), rawString(msg.UserIDAlt)),
		Type:           domain.ParseActivityType(coalesce(rawString(msg.Type), rawString(msg.ActivityType))),
		DurationMin:    nonNegative(msg.Duration, msg.DurationMin),
		CaloriesBurned: nonNegative(msg.CalorieBurned),
		StartTime:      parseTime(coalesce(rawString(msg.StartTime), rawString(msg.StartedAt))),
		Metrics:        rawMetrics(msg.AdditionalMetrics),
	}

	if evt.ID == "" {
		return domain.ActivityEvent{}, fmt.Errorf("%w: id", ErrMissingIdentifier)
	}
	if evt.UserID == "" {
		return domain.ActivityEvent{}, fmt.Errorf("%w: userId", ErrMissingIdentifier)
	}
	return evt, nil
}

// StripWireFormat removes Confluent framing (magic byte + 4-byte schema id) when present.
func StripWireFormat(payload []byte) []byte {
	if len(payload) >= 5 && payload[0] == 0x00 {
		return payload[5:]
	}
	return payload
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// rawString accepts strings and numbers.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// rawInt accepts integers, floats (truncated) and numeric strings.
func rawInt(raw json.RawMessage) (int, bool) {
	text := rawString(raw)
	if text == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// rawMetrics returns an empty map unless raw is a JSON object.
func rawMetrics(raw json.RawMessage) map[string]any {
	metrics := map[string]any{}
	if isAbsent(bytes.TrimSpace(raw)) {
		return metrics
	}
	if err := json.Unmarshal(raw, &metrics); err != nil || metrics == nil {
		return map[string]any{}
	}
	return metrics
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func nonNegative(values ...json.RawMessage) int {
	for _, raw := range values {
		v, ok := rawInt(raw)
		if !ok {
			continue
		}
		if v < 0 {
			return 0
		}
		return v
	}
	return 0
}

func coalesce(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
