package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPromptCommandRendersEvent(t *testing.T) {
	event := `{"id":"a1","userId":"u1","type":"running","duration":30,"calorieBurned":300,"additionalMetrics":{"avgSpeed":"10km/h"}}`
	out, err := execute(t, event, "prompt", "-")
	require.NoError(t, err)
	require.Contains(t, out, `"running"`)
	require.Contains(t, out, `"10km/h"`)
}

func TestPromptCommandRejectsMissingIdentifier(t *testing.T) {
	_, err := execute(t, `{"type":"running"}`, "prompt", "-")
	require.Error(t, err)
}

func TestParseCommandJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"analysis\":{\"overall\":\"Good pace\"},\"improvements\":[{\"area\":\"Pace\",\"recommendation\":\"Slow down\"}],\"suggestions\":[],\"safety\":[\"Drink water\"]}\n```"
	out, err := execute(t, raw, "parse", "-")
	require.NoError(t, err)

	var got parseOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.False(t, got.Degraded)
	require.Equal(t, "Overall:Good pace\n\n", got.Analysis.Narrative)
	require.Equal(t, []string{"Pace: Slow down"}, got.Analysis.Improvements)
}

func TestParseCommandYAML(t *testing.T) {
	out, err := execute(t, "I cannot comply.", "parse", "-", "--output", "yaml")
	require.NoError(t, err)

	var got parseOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	require.True(t, got.Degraded)
	require.Equal(t, "no_json_object", got.Reason)
	require.Equal(t, "Unable to generate detailed analysis", got.Analysis.Narrative)
	require.Len(t, got.Analysis.Safety, 3)
}

func TestParseCommandUnknownFormat(t *testing.T) {
	_, err := execute(t, "{}", "parse", "-", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}
