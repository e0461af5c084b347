package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/storage"
)

type MemoryStorage struct {
	deletions map[string]*domain.DeferredDeletion
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		deletions: make(map[string]*domain.DeferredDeletion),
	}
}

// -----------------------------------------------------------------------------
// Deletion Journal
// -----------------------------------------------------------------------------

type DeletionRepo struct {
	store *MemoryStorage
}

var _ storage.DeletionJournal = (*DeletionRepo)(nil)

func NewDeletionRepo(store *MemoryStorage) *DeletionRepo {
	return &DeletionRepo{store: store}
}

func (r *DeletionRepo) Add(ctx context.Context, d *domain.DeferredDeletion) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("deferred deletion without id")
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.deletions[d.ID] = clone(d)
	return nil
}

func (r *DeletionRepo) Remove(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.deletions[id]; !ok {
		return storage.ErrDeletionNotFound
	}
	delete(r.store.deletions, id)
	return nil
}

func (r *DeletionRepo) Pending(ctx context.Context) ([]*domain.DeferredDeletion, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.DeferredDeletion, 0, len(r.store.deletions))
	for _, d := range r.store.deletions {
		out = append(out, clone(d))
	}
	slices.SortFunc(out, func(a, b *domain.DeferredDeletion) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *DeletionRepo) Clear(ctx context.Context) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := len(r.store.deletions)
	r.store.deletions = make(map[string]*domain.DeferredDeletion)
	return n, nil
}

func clone(d *domain.DeferredDeletion) *domain.DeferredDeletion {
	cp := *d
	cp.MessageIDs = slices.Clone(d.MessageIDs)
	return &cp
}

