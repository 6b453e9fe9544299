// Package analyzer wraps the external classification and transcription
// services behind one uniform interface. Analyzers do not retry: transient
// failures bubble up so the queue layer can redeliver the job.
package analyzer

import (
	"context"
	"fmt"
	"net/http"

	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
)

// Analyzer turns one raw payload into a structured result and category.
type Analyzer interface {
	Analyze(ctx context.Context, payload []byte) (models.AnalysisResult, error)
}

// Dispatcher routes a payload to the analyzer for its complaint type.
type Dispatcher struct {
	text  Analyzer
	voice Analyzer
	image Analyzer
	video Analyzer
}

// NewDispatcher builds the per-type analyzers from config.
func NewDispatcher(cfg config.Config) *Dispatcher {
	client := &remoteClient{
		http: &http.Client{Timeout: cfg.AnalyzerTimeout},
	}
	text := &TextAnalyzer{client: client, classifyURL: cfg.TextClassifierURL}
	return &Dispatcher{
		text:  text,
		voice: &VoiceAnalyzer{client: client, transcribeURL: cfg.TranscriberURL, classifier: text},
		image: &ImageAnalyzer{client: client, visionURL: cfg.VisionURL},
		video: &VideoAnalyzer{client: client, annotateURL: cfg.VideoIntelURL},
	}
}

// Analyze dispatches by complaint type. The switch is exhaustive over the
// known types; anything else is a permanent dispatch error.
func (d *Dispatcher) Analyze(ctx context.Context, typ models.ComplaintType, payload []byte) (models.AnalysisResult, error) {
	switch typ {
	case models.TypeText:
		return d.text.Analyze(ctx, payload)
	case models.TypeVoice:
		return d.voice.Analyze(ctx, payload)
	case models.TypeImage:
		return d.image.Analyze(ctx, payload)
	case models.TypeVideo:
		return d.video.Analyze(ctx, payload)
	default:
		return models.AnalysisResult{}, fmt.Errorf("%w: %q", fault.ErrUnknownComplaintType, typ)
	}
}
