package analyzer

import (
	"context"

	"complaint-pipeline/internal/models"
)

// TextAnalyzer sends complaint text to the external classifier and parses
// its free-form categorization.
type TextAnalyzer struct {
	client      *remoteClient
	classifyURL string
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Analysis   string           `json:"analysis"`
	Sentiment  map[string]any   `json:"sentiment"`
	Entities   []map[string]any `json:"entities"`
	KeyPhrases []string         `json:"key_phrases"`
}

func (a *TextAnalyzer) Analyze(ctx context.Context, payload []byte) (models.AnalysisResult, error) {
	text := string(payload)

	var resp classifyResponse
	if err := a.client.postJSON(ctx, a.classifyURL, classifyRequest{Text: text}, &resp); err != nil {
		return models.AnalysisResult{}, err
	}

	category, summary := parseClassifierOutput(resp.Analysis)
	if summary == "" {
		summary = text
	}

	return models.AnalysisResult{
		Category: category,
		Structured: map[string]any{
			"original":    text,
			"summary":     summary,
			"entities":    resp.Entities,
			"sentiment":   resp.Sentiment,
			"key_phrases": resp.KeyPhrases,
		},
	}, nil
}

// classifyText is used by the voice analyzer to categorize a transcript.
func (a *TextAnalyzer) classifyText(ctx context.Context, text string) (string, error) {
	var resp classifyResponse
	if err := a.client.postJSON(ctx, a.classifyURL, classifyRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	category, _ := parseClassifierOutput(resp.Analysis)
	return category, nil
}
