package store

import (
	"context"
	"fmt"
)

// IndexStateStore tracks the high-water mark for resumable processing.
type IndexStateStore struct {
	db *DB
}

// NewIndexStateStore builds an IndexStateStore.
func NewIndexStateStore(db *DB) *IndexStateStore {
	return &IndexStateStore{db: db}
}

// LastHeight returns the last fully-processed height.
func (s *IndexStateStore) LastHeight(ctx context.Context) (int64, error) {
	var h int64
	err := s.db.Conn.QueryRowContext(ctx, `SELECT last_height FROM index_state WHERE id = 1`).Scan(&h)
	if err != nil {
		return 0, fmt.Errorf("read index state: %w", err)
	}
	return h, nil
}

// SetLastHeight atomically advances the watermark. Called only after a
// height's processing has fully succeeded (spec §4.7 stage 6, §7
// "watermark advances only on full success").
func (s *IndexStateStore) SetLastHeight(ctx context.Context, h int64) error {
	_, err := s.db.Conn.ExecContext(ctx, `
		UPDATE index_state SET last_height = $1, updated_at = now() WHERE id = 1`, h)
	if err != nil {
		return fmt.Errorf("advance index state to %d: %w", h, err)
	}
	return nil
}
