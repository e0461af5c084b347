package storage

import (
	"context"
	"errors"

	"github.com/vietddude/floodguard/internal/core/domain"
)

var (
	// ErrDeletionNotFound is returned when a journaled deletion doesn't exist
	ErrDeletionNotFound = errors.New("deferred deletion not found")
)

// DeletionJournal persists deferred deletions so they survive a restart
type DeletionJournal interface {
	// Add journals a deletion
	Add(ctx context.Context, d *domain.DeferredDeletion) error

	// Remove drops a deletion once it has run
	Remove(ctx context.Context, id string) error

	// Pending returns all journaled deletions ordered by due time
	Pending(ctx context.Context) ([]*domain.DeferredDeletion, error)

	// Clear drops every journaled deletion and returns how many were removed
	Clear(ctx context.Context) (int, error)
}
