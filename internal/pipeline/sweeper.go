package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"complaint-pipeline/internal/telemetry"
)

// Sweeper periodically retries search index writes for complaint records
// whose indexed_at is still NULL, converging the two stores.
type Sweeper struct {
	store complaintStore
	index indexWriter
	batch int
}

func NewSweeper(store complaintStore, index indexWriter, batch int) *Sweeper {
	if batch <= 0 {
		batch = 50
	}
	return &Sweeper{store: store, index: index, batch: batch}
}

// Run sweeps on the given interval until context cancellation.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			repaired, err := s.Sweep(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("reconciliation sweep failed")
			} else if repaired > 0 {
				log.Info().Int("repaired", repaired).Msg("reconciled index-pending complaints")
			}
			if n, err := s.store.CountIndexPending(ctx); err == nil {
				telemetry.IndexPendingGauge.Set(float64(n))
			}
		}
	}
}

// Sweep indexes one batch of pending records. Indexing is keyed by complaint
// id, so re-running over an already-indexed record overwrites the same
// document and the sweep stays idempotent.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.store.ListIndexPending(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, rec := range pending {
		if err := s.index.IndexComplaint(ctx, rec); err != nil {
			// Index still unhealthy; leave the rest for the next pass.
			return repaired, err
		}
		if err := s.store.MarkIndexed(ctx, rec.ID); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}
