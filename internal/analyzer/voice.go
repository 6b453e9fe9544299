package analyzer

import (
	"context"

	"complaint-pipeline/internal/models"
)

// VoiceAnalyzer transcribes complaint audio and categorizes the transcript
// through the text classifier.
type VoiceAnalyzer struct {
	client        *remoteClient
	transcribeURL string
	classifier    *TextAnalyzer
}

type transcribeResponse struct {
	Transcript string           `json:"transcript"`
	Sentiment  map[string]any   `json:"sentiment"`
	Entities   []map[string]any `json:"entities"`
}

func (a *VoiceAnalyzer) Analyze(ctx context.Context, payload []byte) (models.AnalysisResult, error) {
	var resp transcribeResponse
	if err := a.client.postBytes(ctx, a.transcribeURL, "application/octet-stream", payload, &resp); err != nil {
		return models.AnalysisResult{}, err
	}

	category := defaultVoiceCategory
	if resp.Transcript != "" {
		c, err := a.classifier.classifyText(ctx, resp.Transcript)
		if err != nil {
			return models.AnalysisResult{}, err
		}
		if c != "" {
			category = c
		}
	}

	return models.AnalysisResult{
		Category: category,
		Structured: map[string]any{
			"transcript": resp.Transcript,
			"sentiment":  resp.Sentiment,
			"entities":   resp.Entities,
		},
	}, nil
}
