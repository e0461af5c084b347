// Package cache holds small key/value caches for platform metadata.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store is a typed cache. Implementations are safe for concurrent use;
// concurrent writers of one key resolve last-writer-wins.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Store bounded by size and TTL.
type Memory[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewMemory creates an in-process cache holding at most size entries, least
// recently used evicted first. A size of zero is unbounded; a ttl of zero
// keeps entries until evicted.
func NewMemory[V any](size int, ttl time.Duration) *Memory[V] {
	return &Memory[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (m *Memory[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory[V]) Set(ctx context.Context, key string, value V) error {
	m.lru.Add(key, value)
	return nil
}

func (m *Memory[V]) Delete(ctx context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (m *Memory[V]) Len() int {
	return m.lru.Len()
}
