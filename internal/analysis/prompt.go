// Package analysis turns activities into oracle prompts and oracle answers into
// fully defaulted recommendation analyses.
package analysis

import (
	"fmt"

	"example.com/recommendation/internal/domain"
)

const promptTemplate = `You are a fitness AI assistant.
Analyze the given workout data and respond ONLY in JSON format as follows:

{
  "analysis": {
    "overall": "...",
    "heartRate": "...",
    "caloriesBurned": "..."
  },
  "improvements": [
    { "area": "...", "recommendation": "..." }
  ],
  "suggestions": [
    { "workout": "...", "description": "..." }
  ],
  "safety": [
    "..."
  ]
}

Input data:
{
  "type": %q,
  "duration": %d,
  "caloriesBurned": %d,
  "additionalMetrics": {
    "avgSpeed": %q,
    "distance": %q,
    "maxHeartRate": %q
  }
}
`

// BuildPrompt renders the oracle prompt for an activity. Missing metrics render as empty
// strings; the output depends only on the event.
func BuildPrompt(event domain.ActivityEvent) string {
	activityType := event.Type
	if activityType == "" {
		activityType = domain.ActivityTypeUnknown
	}
	return fmt.Sprintf(promptTemplate,
		string(activityType),
		event.DurationMin,
		event.CaloriesBurned,
		event.Metric("avgSpeed"),
		event.Metric("distance"),
		event.Metric("maxHeartRate"),
	)
}
