package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
)

// Store wraps pgxpool for Postgres persistence. The jobs table is the job
// status registry; the complaints table is the system of record.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJob inserts a registry row in state queued.
func (s *Store) CreateJob(ctx context.Context, job models.Job) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, payload, state, attempts, max_attempts, enqueued_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`, job.ID, string(job.Type), payloadJSON, models.StateQueued, job.MaxAttempts, job.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a registry row by id. Returns fault.ErrUnknownJob when the
// id was never issued or the row has been purged.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, payload, state, attempts, max_attempts, complaint_id, result, last_error, enqueued_at, started_at, finished_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var typ string
	var payloadJSON []byte
	var complaintID pgtype.Int8
	var resultJSON []byte
	var lastErr pgtype.Text
	var startedAt, finishedAt pgtype.Timestamptz

	err := row.Scan(&job.ID, &typ, &payloadJSON, &job.State, &job.Attempts, &job.MaxAttempts,
		&complaintID, &resultJSON, &lastErr, &job.EnqueuedAt, &startedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("%w: %s", fault.ErrUnknownJob, id)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	job.Type = models.ComplaintType(typ)
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if complaintID.Valid {
		job.ComplaintID = &complaintID.Int64
	}
	job.LastError = textPtr(lastErr)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	return job, nil
}

// MarkProcessing records a delivery: state processing, attempt counted,
// started_at stamped on the first delivery only.
func (s *Store) MarkProcessing(ctx context.Context, id string, attempts int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = $2, attempts = $3, started_at = COALESCE(started_at, NOW()), last_error = NULL
		WHERE id = $1
	`, id, models.StateProcessing, attempts)
	return err
}

// MarkCompleted transitions a job to its terminal completed state.
func (s *Store) MarkCompleted(ctx context.Context, id string, complaintID int64, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = $2, complaint_id = $3, result = $4, last_error = NULL, finished_at = NOW()
		WHERE id = $1
	`, id, models.StateCompleted, complaintID, resultJSON)
	return err
}

// MarkFailed transitions a job to its terminal failed state with a
// human-readable error for pollers.
func (s *Store) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, last_error = $3, finished_at = NOW() WHERE id = $1
	`, id, models.StateFailed, lastError)
	return err
}

// RecordRetry returns a job to queued with the failure that triggered the
// redelivery, so pollers see progress between attempts.
func (s *Store) RecordRetry(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, attempts = $3, last_error = $4 WHERE id = $1
	`, id, models.StateQueued, attempts, lastError)
	return err
}

// PurgeExpired deletes terminal registry rows past the retention window.
// Complaint records are never purged; only job bookkeeping expires.
func (s *Store) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE state IN ($1, $2) AND finished_at < NOW() - make_interval(secs => $3)
	`, models.StateCompleted, models.StateFailed, retention.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}
