package analyzer

import (
	"context"

	"complaint-pipeline/internal/models"
)

// VideoAnalyzer sends complaint video to the external video-intelligence
// service for label/object tracking, text detection, and transcription.
type VideoAnalyzer struct {
	client      *remoteClient
	annotateURL string
}

type detectedText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type videoResponse struct {
	Labels     []annotation   `json:"labels"`
	Objects    []annotation   `json:"objects"`
	Texts      []detectedText `json:"texts"`
	Transcript string         `json:"transcript"`
	Sentiment  map[string]any `json:"sentiment"`
}

func (a *VideoAnalyzer) Analyze(ctx context.Context, payload []byte) (models.AnalysisResult, error) {
	var resp videoResponse
	if err := a.client.postBytes(ctx, a.annotateURL, "application/octet-stream", payload, &resp); err != nil {
		return models.AnalysisResult{}, err
	}

	names := make([]string, 0, len(resp.Objects)+len(resp.Labels))
	for _, o := range resp.Objects {
		names = append(names, o.Name)
	}
	for _, l := range resp.Labels {
		names = append(names, l.Name)
	}
	category := matchCategory(videoRules, names, defaultVideoCategory)

	texts := make([]map[string]any, 0, len(resp.Texts))
	for _, t := range resp.Texts {
		texts = append(texts, map[string]any{"text": t.Text, "confidence": t.Confidence})
	}

	return models.AnalysisResult{
		Category: category,
		Structured: map[string]any{
			"labels":     annotations(resp.Labels),
			"objects":    annotations(resp.Objects),
			"texts":      texts,
			"transcript": resp.Transcript,
			"sentiment":  resp.Sentiment,
		},
	}, nil
}
