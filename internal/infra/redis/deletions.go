package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/storage"
)

// DeletionJournal stores deferred deletions in a sorted set scored by due
// time, with one JSON key per deletion.
type DeletionJournal struct {
	client *Client
}

var _ storage.DeletionJournal = (*DeletionJournal)(nil)

// NewDeletionJournal creates a Redis-backed deletion journal.
func NewDeletionJournal(client *Client) *DeletionJournal {
	return &DeletionJournal{client: client}
}

// Add journals a deletion.
func (j *DeletionJournal) Add(ctx context.Context, d *domain.DeferredDeletion) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode deletion: %w", err)
	}

	_, err = j.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, j.client.deletionKey(d.ID), raw, 0)
		pipe.ZAdd(ctx, j.client.queueKey(), redis.Z{
			Score:  float64(d.DueAt.UnixMilli()),
			Member: d.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// Remove drops a deletion.
func (j *DeletionJournal) Remove(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := j.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, j.client.queueKey(), id)
		pipe.Del(ctx, j.client.deletionKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	if removed.Val() == 0 {
		return storage.ErrDeletionNotFound
	}
	return nil
}

// Pending returns all journaled deletions ordered by due time.
func (j *DeletionJournal) Pending(ctx context.Context) ([]*domain.DeferredDeletion, error) {
	ids, err := j.client.rdb.ZRange(ctx, j.client.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = j.client.deletionKey(id)
	}
	values, err := j.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	out := make([]*domain.DeferredDeletion, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Data key lost; the queue entry is stale.
			continue
		}
		var d domain.DeferredDeletion
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, fmt.Errorf("decode deletion %s: %w", ids[i], err)
		}
		out = append(out, &d)
	}
	return out, nil
}

// Clear drops every journaled deletion.
func (j *DeletionJournal) Clear(ctx context.Context) (int, error) {
	ids, err := j.client.rdb.ZRange(ctx, j.client.queueKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("zrange failed: %w", err)
	}

	keys := []string{j.client.queueKey()}
	for _, id := range ids {
		keys = append(keys, j.client.deletionKey(id))
	}
	if err := j.client.rdb.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("del failed: %w", err)
	}
	return len(ids), nil
}
