package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
	"complaint-pipeline/internal/search"
	"complaint-pipeline/internal/telemetry"
)

// jobRegistry is the slice of the Postgres store the gateway needs.
type jobRegistry interface {
	CreateJob(ctx context.Context, job models.Job) error
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkFailed(ctx context.Context, id string, lastError string) error
	GetComplaint(ctx context.Context, id int64) (models.ComplaintRecord, error)
}

// jobQueue is the slice of the Redis queue the gateway needs.
type jobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	DLQPeek(ctx context.Context, count int64) ([]string, error)
}

// searcher serves free-text queries against the search index.
type searcher interface {
	Search(ctx context.Context, query string, size int) ([]search.Hit, error)
}

type limiter interface {
	Allow(ctx context.Context, tenant string) (bool, float64, error)
}

// mediaStore offloads binary payloads before enqueueing.
type mediaStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Server wires HTTP handlers for the ingestion gateway.
type Server struct {
	cfg      config.Config
	registry jobRegistry
	queue    jobQueue
	searcher searcher
	limiter  limiter
	media    mediaStore
}

// New constructs the gateway server.
func New(cfg config.Config, reg jobRegistry, q jobQueue, s searcher, limiter limiter, media mediaStore) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		queue:    q,
		searcher: s,
		limiter:  limiter,
		media:    media,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/complaints", s.handleSubmit)
	r.Get("/complaints/{id}", s.handleComplaint)
	r.Get("/jobs/{id}", s.handleStatus)
	r.Get("/search", s.handleSearch)
	r.Get("/dlq", s.handleDLQ)
	return r
}

type submitRequest struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type submitResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		telemetry.RejectedCounter.Inc()
		writeError(w, fmt.Errorf("%w: invalid json", fault.ErrInvalidSubmission))
		return
	}

	typ, err := models.ParseComplaintType(req.Type)
	if err != nil {
		telemetry.RejectedCounter.Inc()
		writeError(w, fmt.Errorf("%w: %q", fault.ErrUnknownComplaintType, req.Type))
		return
	}

	tenant := tenantFromRequest(r)
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), tenant)
		if err != nil {
			writeError(w, fmt.Errorf("rate limit check: %w", err))
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, fault.ErrRateLimited)
			return
		}
	}

	jobID := uuid.New().String()
	payload, err := s.buildPayload(r.Context(), jobID, typ, req.Content)
	if err != nil {
		telemetry.RejectedCounter.Inc()
		writeError(w, err)
		return
	}

	job := models.Job{
		ID:          jobID,
		Type:        typ,
		Payload:     payload,
		State:       models.StateQueued,
		MaxAttempts: s.cfg.MaxAttempts,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := s.registry.CreateJob(r.Context(), job); err != nil {
		writeError(w, fmt.Errorf("create job: %w", err))
		return
	}

	if err := s.queue.Enqueue(r.Context(), jobID); err != nil {
		_ = s.registry.MarkFailed(r.Context(), jobID, "enqueue failed: "+err.Error())
		writeError(w, err)
		return
	}

	telemetry.SubmittedCounter.Inc()
	log.Info().Str("job_id", jobID).Str("type", string(typ)).Str("tenant", tenant).
		Msg("complaint accepted")
	writeJSON(w, http.StatusAccepted, submitResponse{Status: "processing", JobID: jobID})
}

// buildPayload stores the analyzer input: text inline, binary media offloaded
// under a key derived from the job id.
func (s *Server) buildPayload(ctx context.Context, jobID string, typ models.ComplaintType, content json.RawMessage) (map[string]any, error) {
	var raw string
	if err := json.Unmarshal(content, &raw); err != nil || raw == "" {
		return nil, fmt.Errorf("%w: content must be a non-empty string", fault.ErrInvalidSubmission)
	}

	if typ == models.TypeText {
		return map[string]any{"text": raw}, nil
	}

	body, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: content must be base64 for type %s", fault.ErrInvalidSubmission, typ)
	}
	if int64(len(body)) > s.cfg.MediaMaxBytes {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", fault.ErrInvalidSubmission, s.cfg.MediaMaxBytes)
	}

	key := "payloads/" + jobID
	if err := s.media.Put(ctx, key, body, contentTypeFor(typ)); err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}
	return map[string]any{"media_key": key, "size": len(body)}, nil
}

type statusResponse struct {
	Status string         `json:"status"`
	State  string         `json:"state"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.registry.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statusResponse{State: job.State}
	switch job.State {
	case models.StateCompleted:
		resp.Status = "completed"
		resp.Result = job.Result
	case models.StateFailed:
		resp.Status = "error"
		if job.LastError != nil {
			resp.Error = *job.LastError
		}
	default:
		resp.Status = "processing"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleComplaint serves the durable record a completed status payload points
// at via its complaint_id.
func (s *Server) handleComplaint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: complaint id must be numeric", fault.ErrInvalidSubmission))
		return
	}
	rec, err := s.registry.GetComplaint(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, fmt.Errorf("%w: missing query parameter q", fault.ErrInvalidSubmission))
		return
	}
	hits, err := s.searcher.Search(r.Context(), query, 20)
	if err != nil {
		writeError(w, fmt.Errorf("search: %w", err))
		return
	}
	telemetry.SearchCounter.Inc()
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// handleDLQ returns the dead-lettered job IDs for operators.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.DLQPeek(r.Context(), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func contentTypeFor(typ models.ComplaintType) string {
	switch typ {
	case models.TypeVoice:
		return "audio/mpeg"
	case models.TypeImage:
		return "image/jpeg"
	case models.TypeVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, fault.HTTPStatus(err), map[string]string{"error": err.Error()})
}
