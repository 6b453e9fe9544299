package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
	"complaint-pipeline/internal/search"
)

type memRegistry struct {
	jobs    map[string]models.Job
	records map[int64]models.ComplaintRecord
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		jobs:    make(map[string]models.Job),
		records: make(map[int64]models.ComplaintRecord),
	}
}

func (m *memRegistry) CreateJob(_ context.Context, job models.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memRegistry) GetJob(_ context.Context, id string) (models.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, fault.ErrUnknownJob
	}
	return job, nil
}

func (m *memRegistry) MarkFailed(_ context.Context, id, lastError string) error {
	job := m.jobs[id]
	job.State = models.StateFailed
	job.LastError = &lastError
	m.jobs[id] = job
	return nil
}

func (m *memRegistry) GetComplaint(_ context.Context, id int64) (models.ComplaintRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return models.ComplaintRecord{}, fault.ErrUnknownComplaint
	}
	return rec, nil
}

type memQueue struct {
	enqueued []string
	err      error
}

func (m *memQueue) Enqueue(_ context.Context, jobID string) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, jobID)
	return nil
}

func (m *memQueue) DLQPeek(context.Context, int64) ([]string, error) { return nil, nil }

type memSearcher struct {
	hits []search.Hit
}

func (m *memSearcher) Search(context.Context, string, int) ([]search.Hit, error) {
	return m.hits, nil
}

type memMedia struct {
	objects map[string][]byte
}

func (m *memMedia) Put(_ context.Context, key string, body []byte, _ string) error {
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = body
	return nil
}

func newTestServer(reg *memRegistry, q *memQueue, media *memMedia) *Server {
	cfg := config.Config{MaxAttempts: 3, MediaMaxBytes: 1024}
	return New(cfg, reg, q, &memSearcher{}, nil, media)
}

func TestSubmitText(t *testing.T) {
	reg := newMemRegistry()
	q := &memQueue{}
	srv := newTestServer(reg, q, &memMedia{})

	body := `{"type":"text","content":"card charged twice"}`
	req := httptest.NewRequest(http.MethodPost, "/complaints", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		JobID  string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "processing" || resp.JobID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	job, ok := reg.jobs[resp.JobID]
	if !ok {
		t.Fatalf("job row not created")
	}
	if job.Payload["text"] != "card charged twice" {
		t.Fatalf("payload not preserved: %v", job.Payload)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != resp.JobID {
		t.Fatalf("job not enqueued: %v", q.enqueued)
	}
}

func TestSubmitUnknownTypeRejectedWithoutJob(t *testing.T) {
	reg := newMemRegistry()
	q := &memQueue{}
	srv := newTestServer(reg, q, &memMedia{})

	req := httptest.NewRequest(http.MethodPost, "/complaints",
		strings.NewReader(`{"type":"fax","content":"please classify"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(reg.jobs) != 0 {
		t.Fatalf("job created for rejected submission")
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("rejected submission was enqueued")
	}
}

func TestSubmitImageOffloadsMedia(t *testing.T) {
	reg := newMemRegistry()
	q := &memQueue{}
	media := &memMedia{}
	srv := newTestServer(reg, q, media)

	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	body := `{"type":"image","content":"` + base64.StdEncoding.EncodeToString(raw) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/complaints", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)

	job := reg.jobs[resp.JobID]
	key, _ := job.Payload["media_key"].(string)
	if key == "" {
		t.Fatalf("media_key missing from payload: %v", job.Payload)
	}
	if string(media.objects[key]) != string(raw) {
		t.Fatalf("offloaded bytes do not match submission")
	}
}

func TestSubmitImageInvalidBase64(t *testing.T) {
	srv := newTestServer(newMemRegistry(), &memQueue{}, &memMedia{})

	req := httptest.NewRequest(http.MethodPost, "/complaints",
		strings.NewReader(`{"type":"image","content":"not base64!!"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	reg := newMemRegistry()
	q := &memQueue{err: fault.ErrQueueUnavailable}
	srv := newTestServer(reg, q, &memMedia{})

	req := httptest.NewRequest(http.MethodPost, "/complaints",
		strings.NewReader(`{"type":"text","content":"hello"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	for _, job := range reg.jobs {
		if job.State != models.StateFailed {
			t.Fatalf("job state = %s, want failed after enqueue error", job.State)
		}
	}
}

func TestStatusLifecycle(t *testing.T) {
	reg := newMemRegistry()
	srv := newTestServer(reg, &memQueue{}, &memMedia{})

	errMsg := "max retries exceeded: analyzer failure"
	complaintID := int64(42)
	reg.jobs["queued"] = models.Job{ID: "queued", State: models.StateQueued}
	reg.jobs["working"] = models.Job{ID: "working", State: models.StateProcessing}
	reg.jobs["done"] = models.Job{
		ID:          "done",
		State:       models.StateCompleted,
		ComplaintID: &complaintID,
		Result:      map[string]any{"category": "Billing"},
	}
	reg.jobs["broken"] = models.Job{ID: "broken", State: models.StateFailed, LastError: &errMsg}

	tests := []struct {
		id         string
		wantStatus string
	}{
		{"queued", "processing"},
		{"working", "processing"},
		{"done", "completed"},
		{"broken", "error"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+tt.id, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status code = %d", tt.id, rec.Code)
		}
		var resp struct {
			Status string         `json:"status"`
			Result map[string]any `json:"result"`
			Error  string         `json:"error"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Status != tt.wantStatus {
			t.Fatalf("%s: status = %q, want %q", tt.id, resp.Status, tt.wantStatus)
		}
	}

	// Completed jobs expose the result; failed jobs expose the error.
	req := httptest.NewRequest(http.MethodGet, "/jobs/done", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var done struct {
		Result map[string]any `json:"result"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &done)
	if done.Result["category"] != "Billing" {
		t.Fatalf("completed result missing: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/jobs/broken", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var broken struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &broken)
	if broken.Error != errMsg {
		t.Fatalf("failed error missing: %s", rec.Body.String())
	}
}

func TestStatusUnknownJob(t *testing.T) {
	srv := newTestServer(newMemRegistry(), &memQueue{}, &memMedia{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/never-issued", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetComplaint(t *testing.T) {
	reg := newMemRegistry()
	reg.records[42] = models.ComplaintRecord{
		ID:       42,
		Type:     models.TypeText,
		Category: "Billing",
		Content:  map[string]any{"summary": "card charged twice"},
	}
	srv := newTestServer(reg, &memQueue{}, &memMedia{})

	req := httptest.NewRequest(http.MethodGet, "/complaints/42", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got models.ComplaintRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if got.ID != 42 || got.Category != "Billing" {
		t.Fatalf("unexpected record: %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/complaints/43", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown complaint", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/complaints/not-a-number", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-numeric id", rec.Code)
	}
}

type denyLimiter struct {
	tenants []string
}

func (d *denyLimiter) Allow(_ context.Context, tenant string) (bool, float64, error) {
	d.tenants = append(d.tenants, tenant)
	return false, 0, nil
}

func TestSubmitRateLimitedByTenant(t *testing.T) {
	reg := newMemRegistry()
	q := &memQueue{}
	lim := &denyLimiter{}
	cfg := config.Config{MaxAttempts: 3, MediaMaxBytes: 1024}
	srv := New(cfg, reg, q, &memSearcher{}, lim, &memMedia{})

	req := httptest.NewRequest(http.MethodPost, "/complaints",
		strings.NewReader(`{"type":"text","content":"hello"}`))
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if len(lim.tenants) != 1 || lim.tenants[0] != "tenant-a" {
		t.Fatalf("limiter consulted with wrong tenant: %v", lim.tenants)
	}
	if len(reg.jobs) != 0 || len(q.enqueued) != 0 {
		t.Fatalf("rate-limited submission created work")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(newMemRegistry(), &memQueue{}, &memMedia{})

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
