package analysis

import (
	"bytes"
	"encoding/json"
	"strings"

	"example.com/recommendation/internal/domain"
)

// Reason codes reported when parsing falls back to the default analysis.
const (
	ReasonNoJSONObject   = "no_json_object"
	ReasonInvalidJSON    = "invalid_json"
	ReasonEmptyEnvelope  = "empty_envelope"
	ReasonMalformedField = "malformed_field"
)

const (
	defaultNarrative        = "Unable to generate detailed analysis"
	defaultImprovement      = "Continue with your current routine"
	defaultSuggestion       = "Consider consulting a fitness professional"
	noImprovementsProvided  = "No specific improvements provided"
	noSuggestionsProvided   = "No specific suggestions provided"
	overallLabel            = "Overall:"
	heartRateLabel          = "HeartRate:"
	caloriesBurnedLabel     = "CaloriesBurned:"
	narrativeSectionDivider = "\n\n"
)

// CanonicalSafetyTips returns the fixed safety advice used whenever none is extracted.
func CanonicalSafetyTips() []string {
	return []string{"Always warm up before exercise", "Stay hydrated", "Listen to your body"}
}

// DefaultAnalysis is the analysis used when the oracle answer cannot be interpreted.
func DefaultAnalysis() domain.Analysis {
	return domain.Analysis{
		Narrative:    defaultNarrative,
		Improvements: []string{defaultImprovement},
		Suggestions:  []string{defaultSuggestion},
		Safety:       CanonicalSafetyTips(),
	}
}

// Improvement is one area/recommendation pair proposed by the oracle.
type Improvement struct {
	Area           string
	Recommendation string
}

// Suggestion is one workout/description pair proposed by the oracle.
type Suggestion struct {
	Workout     string
	Description string
}

// ParsedAnalysis holds what was extracted from the oracle payload. Nil sections were absent.
type ParsedAnalysis struct {
	Overall        *string
	HeartRate      *string
	CaloriesBurned *string
	Improvements   []Improvement
	Suggestions    []Suggestion
	Safety         []string
}

// Result is the outcome of Parse. Degraded results carry the default analysis and a reason.
type Result struct {
	Analysis domain.Analysis
	Degraded bool
	Reason   string
}

// Parse converts a raw oracle response into an analysis. It never fails: every problem
// along the way resolves to DefaultAnalysis with a reason code.
func Parse(raw string) Result {
	parsed, reason := Extract(raw)
	if reason != "" {
		return Result{Analysis: DefaultAnalysis(), Degraded: true, Reason: reason}
	}
	return Result{Analysis: Render(parsed)}
}

// Extract walks the response through envelope unwrap, noise stripping, strict decoding and
// field extraction. A non-empty reason means a step found nothing usable.
func Extract(raw string) (ParsedAnalysis, string) {
	candidate, ok := jsonCandidate(raw)
	if !ok {
		return ParsedAnalysis{}, ReasonNoJSONObject
	}
	root, ok := decodeObject(candidate)
	if !ok {
		return ParsedAnalysis{}, ReasonInvalidJSON
	}

	if _, isEnvelope := root["candidates"]; isEnvelope {
		text, ok := envelopeText(candidate)
		if !ok {
			return ParsedAnalysis{}, ReasonEmptyEnvelope
		}
		candidate, ok = jsonCandidate(text)
		if !ok {
			return ParsedAnalysis{}, ReasonNoJSONObject
		}
		root, ok = decodeObject(candidate)
		if !ok {
			return ParsedAnalysis{}, ReasonInvalidJSON
		}
	}

	parsed, ok := extractFields(root)
	if !ok {
		return ParsedAnalysis{}, ReasonMalformedField
	}
	return parsed, ""
}

// Render applies per-field defaults to an extracted analysis.
func Render(parsed ParsedAnalysis) domain.Analysis {
	var narrative strings.Builder
	appendSection(&narrative, overallLabel, parsed.Overall)
	appendSection(&narrative, heartRateLabel, parsed.HeartRate)
	appendSection(&narrative, caloriesBurnedLabel, parsed.CaloriesBurned)

	out := domain.Analysis{
		Narrative:    narrative.String(),
		Improvements: make([]string, 0, len(parsed.Improvements)),
		Suggestions:  make([]string, 0, len(parsed.Suggestions)),
		Safety:       make([]string, 0, len(parsed.Safety)),
	}
	for _, imp := range parsed.Improvements {
		out.Improvements = append(out.Improvements, imp.Area+": "+imp.Recommendation)
	}
	for _, sug := range parsed.Suggestions {
		out.Suggestions = append(out.Suggestions, sug.Workout+": "+sug.Description)
	}
	out.Safety = append(out.Safety, parsed.Safety...)

	if len(out.Improvements) == 0 {
		out.Improvements = []string{noImprovementsProvided}
	}
	if len(out.Suggestions) == 0 {
		out.Suggestions = []string{noSuggestionsProvided}
	}
	if len(out.Safety) == 0 {
		out.Safety = CanonicalSafetyTips()
	}
	return out
}

func appendSection(b *strings.Builder, label string, text *string) {
	if text == nil {
		return
	}
	b.WriteString(label)
	b.WriteString(*text)
	b.WriteString(narrativeSectionDivider)
}

// jsonCandidate removes code fences and returns the span from the first '{' to the last '}'.
func jsonCandidate(text string) (string, bool) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// decodeObject parses text strictly as a single JSON object.
func decodeObject(text string) (map[string]json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// envelopeText descends candidates[0].content.parts[0].text.
func envelopeText(candidate string) (string, bool) {
	var envelope struct {
		Candidates []struct {
			Content *struct {
				Parts []struct {
					Text *string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return "", false
	}
	if len(envelope.Candidates) == 0 || envelope.Candidates[0].Content == nil {
		return "", false
	}
	parts := envelope.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == nil || strings.TrimSpace(*parts[0].Text) == "" {
		return "", false
	}
	return *parts[0].Text, true
}

func extractFields(root map[string]json.RawMessage) (ParsedAnalysis, bool) {
	var parsed ParsedAnalysis

	if raw, ok := present(root, "analysis"); ok {
		section, ok := asObject(raw)
		if !ok {
			return ParsedAnalysis{}, false
		}
		for key, dst := range map[string]**string{
			"overall":        &parsed.Overall,
			"heartRate":      &parsed.HeartRate,
			"caloriesBurned": &parsed.CaloriesBurned,
		} {
			value, ok := present(section, key)
			if !ok {
				continue
			}
			text, ok := scalarText(value)
			if !ok {
				return ParsedAnalysis{}, false
			}
			*dst = &text
		}
	}

	improvements, ok := objectEntries(root, "improvements")
	if !ok {
		return ParsedAnalysis{}, false
	}
	for _, entry := range improvements {
		area, okArea := fieldText(entry, "area")
		rec, okRec := fieldText(entry, "recommendation")
		if okArea && okRec {
			parsed.Improvements = append(parsed.Improvements, Improvement{Area: area, Recommendation: rec})
		}
	}

	suggestions, ok := objectEntries(root, "suggestions")
	if !ok {
		return ParsedAnalysis{}, false
	}
	for _, entry := range suggestions {
		workout, okWorkout := fieldText(entry, "workout")
		desc, okDesc := fieldText(entry, "description")
		if okWorkout && okDesc {
			parsed.Suggestions = append(parsed.Suggestions, Suggestion{Workout: workout, Description: desc})
		}
	}

	safety, ok := arrayEntries(root, "safety")
	if !ok {
		return ParsedAnalysis{}, false
	}
	for _, item := range safety {
		item = bytes.TrimSpace(item)
		var advice string
		if err := json.Unmarshal(item, &advice); err == nil {
			if strings.TrimSpace(advice) != "" {
				parsed.Safety = append(parsed.Safety, advice)
			}
			continue
		}
		if obj, ok := asObject(item); ok {
			if text, ok := fieldText(obj, "advice"); ok && strings.TrimSpace(text) != "" {
				parsed.Safety = append(parsed.Safety, text)
			}
		}
	}

	return parsed, true
}

// present reports a key that exists and is not JSON null.
func present(obj map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// arrayEntries returns the elements of an optional array field. Absent yields (nil, true);
// a non-array value yields false.
func arrayEntries(obj map[string]json.RawMessage, key string) ([]json.RawMessage, bool) {
	raw, ok := present(obj, key)
	if !ok {
		return nil, true
	}
	if raw[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

// objectEntries is arrayEntries restricted to object elements; other elements are skipped.
func objectEntries(obj map[string]json.RawMessage, key string) ([]map[string]json.RawMessage, bool) {
	items, ok := arrayEntries(obj, key)
	if !ok {
		return nil, false
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		if entry, ok := asObject(bytes.TrimSpace(item)); ok {
			out = append(out, entry)
		}
	}
	return out, true
}

func fieldText(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := present(obj, key)
	if !ok {
		return "", false
	}
	return scalarText(raw)
}

// scalarText renders strings, numbers and booleans; containers are rejected.
func scalarText(raw json.RawMessage) (string, bool) {
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[':
		return "", false
	default:
		return string(raw), true
	}
}
