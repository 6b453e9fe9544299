// Package pipeline holds the dual-write coordinator and the reconciliation
// sweep that converges the relational store and the search index.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"complaint-pipeline/internal/models"
	"complaint-pipeline/internal/telemetry"
)

// complaintStore is the slice of the Postgres store the coordinator needs.
type complaintStore interface {
	InsertComplaint(ctx context.Context, typ models.ComplaintType, content map[string]any, category string) (int64, error)
	ListIndexPending(ctx context.Context, limit int) ([]models.ComplaintRecord, error)
	MarkIndexed(ctx context.Context, id int64) error
	CountIndexPending(ctx context.Context) (int64, error)
}

// indexWriter is the slice of the search client the coordinator needs.
type indexWriter interface {
	IndexComplaint(ctx context.Context, rec models.ComplaintRecord) error
}

// Committer performs the dual write: relational first and authoritative,
// search index second and best-effort.
type Committer struct {
	store complaintStore
	index indexWriter
}

func NewCommitter(store complaintStore, index indexWriter) *Committer {
	return &Committer{store: store, index: index}
}

// Commit durably records an analyzed complaint and returns the
// store-assigned complaint id.
//
// The relational insert and the index write cannot be atomic across a
// process boundary. A relational failure fails the whole commit; an index
// failure only leaves the record index-pending, to be repaired by the
// reconciliation sweep. The job owning this commit completes as soon as the
// relational write lands.
func (c *Committer) Commit(ctx context.Context, typ models.ComplaintType, result models.AnalysisResult) (int64, error) {
	start := time.Now()
	defer func() {
		telemetry.CommitDuration.Observe(time.Since(start).Seconds())
	}()

	id, err := c.store.InsertComplaint(ctx, typ, result.Structured, result.Category)
	if err != nil {
		return 0, err
	}

	rec := models.ComplaintRecord{
		ID:       id,
		Type:     typ,
		Content:  result.Structured,
		Category: result.Category,
	}
	if err := c.index.IndexComplaint(ctx, rec); err != nil {
		// The backlog gauge is owned by the sweeper, which sets it from the
		// authoritative pending count on every pass.
		log.Warn().Err(err).Int64("complaint_id", id).
			Msg("index write deferred to reconciliation")
		return id, nil
	}

	if err := c.store.MarkIndexed(ctx, id); err != nil {
		// The document exists; the sweep will re-index (a no-op) and restamp.
		log.Warn().Err(err).Int64("complaint_id", id).Msg("mark indexed failed")
	}
	return id, nil
}
