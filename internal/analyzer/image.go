package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"

	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
)

// ImageAnalyzer enhances the image and sends it to the external vision
// service for text, label, and object detection.
type ImageAnalyzer struct {
	client    *remoteClient
	visionURL string
}

type annotation struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type visionResponse struct {
	Text      string         `json:"text"`
	Labels    []annotation   `json:"labels"`
	Objects   []annotation   `json:"objects"`
	Sentiment map[string]any `json:"sentiment"`
}

func (a *ImageAnalyzer) Analyze(ctx context.Context, payload []byte) (models.AnalysisResult, error) {
	enhanced, err := enhanceImage(payload)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	var resp visionResponse
	if err := a.client.postBytes(ctx, a.visionURL, "image/jpeg", enhanced, &resp); err != nil {
		return models.AnalysisResult{}, err
	}

	names := make([]string, 0, len(resp.Objects)+len(resp.Labels))
	for _, o := range resp.Objects {
		names = append(names, o.Name)
	}
	for _, l := range resp.Labels {
		names = append(names, l.Name)
	}
	category := matchCategory(imageRules, names, defaultImageCategory)

	return models.AnalysisResult{
		Category: category,
		Structured: map[string]any{
			"text":      resp.Text,
			"labels":    annotations(resp.Labels),
			"objects":   annotations(resp.Objects),
			"sentiment": resp.Sentiment,
		},
	}, nil
}

// enhanceImage normalizes contrast and sharpness before detection, the same
// cleanup the upstream services expect for noisy user-submitted photos.
func enhanceImage(payload []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", fault.ErrAnalyzer, err)
	}
	img = imaging.AdjustContrast(img, 15)
	img = imaging.Sharpen(img, 0.5)

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("%w: encode image: %v", fault.ErrAnalyzer, err)
	}
	return buf.Bytes(), nil
}

func annotations(in []annotation) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, a := range in {
		out = append(out, map[string]any{"name": a.Name, "score": a.Score})
	}
	return out
}
