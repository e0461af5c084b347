package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/storage"
)

// DeletionRepo implements storage.DeletionJournal using PostgreSQL.
type DeletionRepo struct {
	db *DB
}

var _ storage.DeletionJournal = (*DeletionRepo)(nil)

// NewDeletionRepo creates a new PostgreSQL deletion journal.
func NewDeletionRepo(db *DB) *DeletionRepo {
	return &DeletionRepo{db: db}
}

type deletionRow struct {
	ID         string    `db:"id"`
	ChatID     int64     `db:"chat_id"`
	MessageIDs []byte    `db:"message_ids"`
	DueAt      time.Time `db:"due_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// Add journals a deletion.
func (r *DeletionRepo) Add(ctx context.Context, d *domain.DeferredDeletion) error {
	ids, err := json.Marshal(d.MessageIDs)
	if err != nil {
		return fmt.Errorf("failed to encode message ids: %w", err)
	}

	query := `
		INSERT INTO deferred_deletions (id, chat_id, message_ids, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id, message_ids = EXCLUDED.message_ids, due_at = EXCLUDED.due_at
	`
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, query, d.ID, int64(d.ChatID), ids, d.DueAt, createdAt)
	if err != nil {
		return fmt.Errorf("failed to add deferred deletion: %w", err)
	}
	return nil
}

// Remove drops a deletion.
func (r *DeletionRepo) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deferred_deletions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove deferred deletion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrDeletionNotFound
	}
	return nil
}

// Pending returns all journaled deletions ordered by due time.
func (r *DeletionRepo) Pending(ctx context.Context) ([]*domain.DeferredDeletion, error) {
	query := `
		SELECT id, chat_id, message_ids, due_at, created_at
		FROM deferred_deletions
		ORDER BY due_at ASC, id ASC
	`

	var rows []deletionRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list deferred deletions: %w", err)
	}

	out := make([]*domain.DeferredDeletion, 0, len(rows))
	for _, row := range rows {
		var ids []domain.MessageID
		if err := json.Unmarshal(row.MessageIDs, &ids); err != nil {
			return nil, fmt.Errorf("failed to decode message ids of %s: %w", row.ID, err)
		}
		out = append(out, &domain.DeferredDeletion{
			ID:         row.ID,
			ChatID:     domain.ChatID(row.ChatID),
			MessageIDs: ids,
			DueAt:      row.DueAt,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}

// Clear drops every journaled deletion.
func (r *DeletionRepo) Clear(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deferred_deletions`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear deferred deletions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
