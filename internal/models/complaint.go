package models

import (
	"fmt"
	"time"
)

// ComplaintType tags a submission with the analyzer family it belongs to.
type ComplaintType string

const (
	TypeText  ComplaintType = "text"
	TypeVoice ComplaintType = "voice"
	TypeImage ComplaintType = "image"
	TypeVideo ComplaintType = "video"
)

// ParseComplaintType validates a wire-level type tag.
func ParseComplaintType(s string) (ComplaintType, error) {
	switch ComplaintType(s) {
	case TypeText, TypeVoice, TypeImage, TypeVideo:
		return ComplaintType(s), nil
	default:
		return "", fmt.Errorf("unknown complaint type %q", s)
	}
}

// JobState enumerates lifecycle states persisted in Postgres.
// Transitions are monotonic: queued -> processing -> completed|failed.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// TerminalState reports whether a job can no longer transition.
func TerminalState(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// Job is one unit of pipeline work for a single complaint submission.
// The row in the jobs table doubles as the job status registry.
type Job struct {
	ID          string         `json:"id"`
	Type        ComplaintType  `json:"type"`
	Payload     map[string]any `json:"payload"`
	State       string         `json:"state"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	ComplaintID *int64         `json:"complaint_id,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// ComplaintRecord is the durable result of a successfully processed job.
// ID is assigned by Postgres on insert and is the canonical identity; the
// owning jobId is pipeline-local and expires with the registry row.
type ComplaintRecord struct {
	ID        int64          `json:"id"`
	Type      ComplaintType  `json:"type"`
	Content   map[string]any `json:"content"`
	Category  string         `json:"category"`
	CreatedAt time.Time      `json:"created_at"`
	IndexedAt *time.Time     `json:"indexed_at,omitempty"`
}

// AnalysisResult is the normalized output of any analyzer.
type AnalysisResult struct {
	Structured map[string]any `json:"structured"`
	Category   string         `json:"category"`
}

// SearchText extracts the free-text field worth indexing for a record's type.
// Falls back to the category so the index entry is never empty.
func (r ComplaintRecord) SearchText() string {
	for _, key := range []string{"summary", "transcript", "text"} {
		if v, ok := r.Content[key].(string); ok && v != "" {
			return v
		}
	}
	return r.Category
}
