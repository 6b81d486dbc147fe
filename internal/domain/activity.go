package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ActivityType is the enumerated workout category carried by activity events.
type ActivityType string

const (
	ActivityTypeRunning        ActivityType = "running"
	ActivityTypeWalking        ActivityType = "walking"
	ActivityTypeCycling        ActivityType = "cycling"
	ActivityTypeSwimming       ActivityType = "swimming"
	ActivityTypeWeightTraining ActivityType = "weight_training"
	ActivityTypeYoga           ActivityType = "yoga"
	ActivityTypeHIIT           ActivityType = "hiit"
	ActivityTypeCardio         ActivityType = "cardio"
	ActivityTypeStretching     ActivityType = "stretching"
	ActivityTypeOther          ActivityType = "other"
	// ActivityTypeUnknown covers types this service does not recognise yet.
	ActivityTypeUnknown ActivityType = "unknown"
)

var knownActivityTypes = map[ActivityType]struct{}{
	ActivityTypeRunning:        {},
	ActivityTypeWalking:        {},
	ActivityTypeCycling:        {},
	ActivityTypeSwimming:       {},
	ActivityTypeWeightTraining: {},
	ActivityTypeYoga:           {},
	ActivityTypeHIIT:           {},
	ActivityTypeCardio:         {},
	ActivityTypeStretching:     {},
	ActivityTypeOther:          {},
}

// ParseActivityType maps producer spellings ("RUNNING", "Weight Training") onto the enum.
func ParseActivityType(raw string) ActivityType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if _, ok := knownActivityTypes[ActivityType(key)]; ok {
		return ActivityType(key)
	}
	return ActivityTypeUnknown
}

// ActivityEvent is the inbound activity as received from the event stream. It is not
// modified after decoding.
type ActivityEvent struct {
	ID             string
	UserID         string
	Type           ActivityType
	DurationMin    int
	CaloriesBurned int
	StartTime      time.Time
	Metrics        map[string]any
}

// Metric renders an additional metric for prompt interpolation. Absent keys yield "".
func (e ActivityEvent) Metric(key string) string {
	value, ok := e.Metrics[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
