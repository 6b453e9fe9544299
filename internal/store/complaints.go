package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"complaint-pipeline/internal/fault"
	"complaint-pipeline/internal/models"
)

// InsertComplaint writes the system-of-record row inside a single transaction
// and returns the store-assigned complaint id. indexed_at starts NULL, which
// marks the row index-pending until the search write lands.
func (s *Store) InsertComplaint(ctx context.Context, typ models.ComplaintType, content map[string]any, category string) (int64, error) {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return 0, fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", fault.ErrRelationalWrite, err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO complaints (type, content, category)
		VALUES ($1, $2, $3)
		RETURNING id
	`, string(typ), contentJSON, category).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert complaint: %v", fault.ErrRelationalWrite, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", fault.ErrRelationalWrite, err)
	}
	return id, nil
}

// GetComplaint fetches a complaint record by id. Returns
// fault.ErrUnknownComplaint when no row exists.
func (s *Store) GetComplaint(ctx context.Context, id int64) (models.ComplaintRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, content, category, created_at, indexed_at
		FROM complaints WHERE id = $1
	`, id)
	rec, err := scanComplaint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ComplaintRecord{}, fmt.Errorf("%w: %d", fault.ErrUnknownComplaint, id)
	}
	return rec, err
}

// ListIndexPending returns complaint records whose search index write has not
// landed yet, oldest first. The reconciliation sweep drains these.
func (s *Store) ListIndexPending(ctx context.Context, limit int) ([]models.ComplaintRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, content, category, created_at, indexed_at
		FROM complaints WHERE indexed_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list index pending: %w", err)
	}
	defer rows.Close()

	var out []models.ComplaintRecord
	for rows.Next() {
		rec, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkIndexed stamps indexed_at once the search index holds the document.
// Re-marking an already indexed record keeps the original stamp.
func (s *Store) MarkIndexed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE complaints SET indexed_at = COALESCE(indexed_at, NOW()) WHERE id = $1
	`, id)
	return err
}

// CountIndexPending reports the reconciliation backlog for telemetry.
func (s *Store) CountIndexPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM complaints WHERE indexed_at IS NULL
	`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index pending: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (models.ComplaintRecord, error) {
	var rec models.ComplaintRecord
	var typ string
	var contentJSON []byte
	if err := row.Scan(&rec.ID, &typ, &contentJSON, &rec.Category, &rec.CreatedAt, &rec.IndexedAt); err != nil {
		return models.ComplaintRecord{}, fmt.Errorf("scan complaint: %w", err)
	}
	rec.Type = models.ComplaintType(typ)
	if err := json.Unmarshal(contentJSON, &rec.Content); err != nil {
		return models.ComplaintRecord{}, fmt.Errorf("unmarshal content: %w", err)
	}
	return rec, nil
}
