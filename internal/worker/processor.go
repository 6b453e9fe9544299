package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"complaint-pipeline/internal/config"
	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
	"complaint-pipeline/internal/telemetry"
)

// jobQueue is the slice of the Redis queue the processor needs.
type jobQueue interface {
	Dequeue(ctx context.Context) (string, error)
	ExtendLease(ctx context.Context, jobID string, extension time.Duration) error
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string, delay time.Duration) error
	PromoteDelayed(ctx context.Context, now time.Time, limit int64) (int, error)
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	DLQPush(ctx context.Context, jobID string) error
	ReadyDepth(ctx context.Context) (int64, error)
}

// jobRegistry is the slice of the Postgres store tracking job lifecycle.
type jobRegistry interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	MarkProcessing(ctx context.Context, id string, attempts int) error
	MarkCompleted(ctx context.Context, id string, complaintID int64, result map[string]any) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	RecordRetry(ctx context.Context, id string, attempts int, lastError string) error
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// dispatcher routes a payload to its type-specific analyzer.
type dispatcher interface {
	Analyze(ctx context.Context, typ models.ComplaintType, payload []byte) (models.AnalysisResult, error)
}

// committer performs the dual write and returns the complaint id.
type committer interface {
	Commit(ctx context.Context, typ models.ComplaintType, result models.AnalysisResult) (int64, error)
}

// payloadFetcher loads offloaded media payloads by key.
type payloadFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Processor drives the fetch-analyze-commit loop for a pool of workers.
// Workers share nothing but the queue and the registry; a payload that fails
// repeatedly only burns its own attempt budget.
type Processor struct {
	cfg       config.Config
	queue     jobQueue
	registry  jobRegistry
	analyzers dispatcher
	committer committer
	media     payloadFetcher
}

func NewProcessor(cfg config.Config, q jobQueue, reg jobRegistry, d dispatcher, c committer, media payloadFetcher) *Processor {
	return &Processor{
		cfg:       cfg,
		queue:     q,
		registry:  reg,
		analyzers: d,
		committer: c,
		media:     media,
	}
}

// RunPool starts N worker loops plus one maintenance loop and blocks until
// context cancellation. In-flight jobs finish (or hit their deadline) before
// the pool returns.
func (p *Processor) RunPool(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.runMaintenance(ctx) })

	workers := p.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("worker-%d", i)
		g.Go(func() error { return p.runWorker(ctx, id) })
	}
	return g.Wait()
}

// runWorker is one blocking fetch-process loop.
func (p *Processor) runWorker(ctx context.Context, workerID string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		jobID, err := p.queue.Dequeue(ctx)
		if err != nil || jobID == "" {
			if err != nil {
				log.Warn().Err(err).Str("worker", workerID).Msg("dequeue failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}

		p.processOne(ctx, workerID, jobID)
	}
}

func (p *Processor) processOne(ctx context.Context, workerID, jobID string) {
	job, err := p.registry.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, fault.ErrUnknownJob) {
			// Registry row gone (purged or never written); drop the delivery.
			log.Warn().Err(err).Str("job_id", jobID).Msg("dequeued job without registry row")
			_ = p.queue.Ack(ctx, jobID)
			return
		}
		// Transient registry fault. Return the delivery instead of acking it
		// away so the job is retried once the store recovers.
		log.Warn().Err(err).Str("job_id", jobID).Msg("registry lookup failed")
		_ = p.queue.Nack(ctx, jobID, p.cfg.BackoffInitial)
		return
	}
	if models.TerminalState(job.State) {
		// Stale redelivery after a crash between terminal update and Ack.
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	attempt := job.Attempts + 1
	_ = p.registry.MarkProcessing(ctx, job.ID, attempt)
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	// The deadline bounds the analyzer round trip and the commit; a slow
	// external call Nacks instead of starving the pool.
	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobDeadline)
	stopRenewal := p.keepLeaseAlive(jobCtx, job.ID)
	complaintID, result, err := p.runJob(jobCtx, job)
	stopRenewal()
	cancel()

	if err == nil {
		summary := map[string]any{
			"complaint_id": complaintID,
			"category":     result.Category,
			"content":      result.Structured,
		}
		_ = p.registry.MarkCompleted(ctx, job.ID, complaintID, summary)
		_ = p.queue.Ack(ctx, job.ID)
		telemetry.JobsCompleted.Inc()
		log.Info().Str("worker", workerID).Str("job_id", job.ID).
			Int64("complaint_id", complaintID).Str("category", result.Category).
			Msg("job completed")
		return
	}

	if errors.Is(err, fault.ErrUnknownComplaintType) {
		// Permanent: retrying cannot change the dispatch outcome.
		_ = p.registry.MarkFailed(ctx, job.ID, err.Error())
		_ = p.queue.Ack(ctx, job.ID)
		telemetry.JobsFailed.Inc()
		return
	}

	if attempt >= job.MaxAttempts {
		_ = p.registry.MarkFailed(ctx, job.ID, fmt.Sprintf("max retries exceeded: %v", err))
		_ = p.queue.Ack(ctx, job.ID)
		_ = p.queue.DLQPush(ctx, job.ID)
		telemetry.JobsFailed.Inc()
		telemetry.JobsDeadLetter.Inc()
		log.Error().Str("worker", workerID).Str("job_id", job.ID).Err(err).
			Int("attempts", attempt).Msg("job failed permanently")
		return
	}

	delay := backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, attempt)
	_ = p.registry.RecordRetry(ctx, job.ID, attempt, err.Error())
	_ = p.queue.Nack(ctx, job.ID, delay)
	telemetry.JobsRetried.Inc()
	log.Warn().Str("worker", workerID).Str("job_id", job.ID).Err(err).
		Int("attempt", attempt).Dur("retry_in", delay).Msg("job attempt failed")
}

// keepLeaseAlive renews the job's visibility lease while analysis runs.
// Without renewal, any analysis slower than the visibility timeout would be
// reclaimed by the maintenance sweep and handed to a second worker mid-flight,
// dual-writing the same submission twice. Returns a stop func that blocks
// until the renewal loop has exited.
func (p *Processor) keepLeaseAlive(ctx context.Context, jobID string) func() {
	interval := p.cfg.VisibilityTimeout / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.ExtendLease(ctx, jobID, p.cfg.VisibilityTimeout); err != nil {
					log.Warn().Err(err).Str("job_id", jobID).Msg("lease renewal failed")
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// runJob analyzes the payload and commits the result.
func (p *Processor) runJob(ctx context.Context, job models.Job) (int64, models.AnalysisResult, error) {
	payload, err := p.loadPayload(ctx, job)
	if err != nil {
		return 0, models.AnalysisResult{}, err
	}

	start := time.Now()
	result, err := p.analyzers.Analyze(ctx, job.Type, payload)
	telemetry.AnalyzeDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, models.AnalysisResult{}, err
	}

	complaintID, err := p.committer.Commit(ctx, job.Type, result)
	if err != nil {
		return 0, models.AnalysisResult{}, err
	}
	return complaintID, result, nil
}

// loadPayload resolves the analyzer input: inline text, or offloaded media
// referenced by key.
func (p *Processor) loadPayload(ctx context.Context, job models.Job) ([]byte, error) {
	if job.Type == models.TypeText {
		text, ok := job.Payload["text"].(string)
		if !ok {
			return nil, fmt.Errorf("job %s: text payload missing", job.ID)
		}
		return []byte(text), nil
	}

	key, ok := job.Payload["media_key"].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("job %s: media_key missing", job.ID)
	}
	body, err := p.media.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch payload: %w", err)
	}
	return body, nil
}

// runMaintenance promotes delayed retries, reclaims expired leases, purges
// terminal registry rows past retention, and samples queue depth.
func (p *Processor) runMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	purge := time.NewTicker(p.cfg.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-purge.C:
			if n, err := p.registry.PurgeExpired(ctx, p.cfg.JobRetention); err != nil {
				log.Warn().Err(err).Msg("purge expired jobs failed")
			} else if n > 0 {
				log.Info().Int64("purged", n).Msg("expired jobs purged")
			}
		case <-ticker.C:
			_, _ = p.queue.PromoteDelayed(ctx, time.Now(), int64(p.cfg.RequeueBatchSize))

			reclaimed, _ := p.queue.RequeueExpired(ctx, time.Now(), int64(p.cfg.RequeueBatchSize))
			for _, id := range reclaimed {
				job, err := p.registry.GetJob(ctx, id)
				if err != nil || models.TerminalState(job.State) {
					continue
				}
				_ = p.registry.RecordRetry(ctx, id, job.Attempts, "visibility timeout; requeued")
			}
			if len(reclaimed) > 0 {
				log.Warn().Int("count", len(reclaimed)).Msg("reclaimed expired leases")
			}

			if depth, err := p.queue.ReadyDepth(ctx); err == nil {
				telemetry.QueueDepthGauge.Set(float64(depth))
			}
		}
	}
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	if wait/2 <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}
