package oracle

import (
	"context"

	genai "google.golang.org/genai"
)

// GenAIClient uses the official genai SDK. The SDK unwraps the provider envelope itself, so
// the text returned is the model's answer; the parser accepts both shapes.
type GenAIClient struct {
	cli   *genai.Client
	model string
}

// NewGenAIClient builds a Gemini API backed client.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GenAIClient{cli: cli, model: model}, nil
}

// Ask implements Oracle.
func (g *GenAIClient) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", unavailable(err)
	}
	// An empty answer is not a transport failure; the parser degrades it to the default.
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
