// Package budget paces outgoing calls before the remote platform has to.
//
// This package contains:
//   - Limiter: interface consulted by the executor before each attempt
//   - KeyedLimiter: token bucket per target (chat) with idle eviction
package budget

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds pacing configuration.
type Config struct {
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
}

// Limiter blocks until a call against key may proceed.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// UsageStats holds pacing statistics.
type UsageStats struct {
	Keys    int
	Calls   uint64
	Delayed uint64
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter applies a token bucket per key and periodically evicts idle entries.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	byKey   map[string]*entry
	calls   uint64
	delayed uint64
	now     func() time.Time
}

// NewKeyedLimiter creates a keyed limiter; returns nil if pacing is disabled.
func NewKeyedLimiter(cfg Config) *KeyedLimiter {
	if cfg.RatePerSecond <= 0 || cfg.Burst <= 0 {
		return nil
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		limit:   rate.Limit(cfg.RatePerSecond),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		byKey:   make(map[string]*entry),
		now:     time.Now,
	}
}

func (l *KeyedLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.calls++
	if l.calls%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return e.limiter
}

// Allow reports whether one call for key can go out now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}
	return l.get(key).Allow()
}

// Wait blocks until a call for key may proceed or ctx is done.
func (l *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	lim := l.get(key)
	if lim.Allow() {
		return nil
	}

	l.mu.Lock()
	l.delayed++
	l.mu.Unlock()

	return lim.Wait(ctx)
}

// Usage returns pacing statistics.
func (l *KeyedLimiter) Usage() UsageStats {
	if l == nil {
		return UsageStats{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return UsageStats{
		Keys:    len(l.byKey),
		Calls:   l.calls,
		Delayed: l.delayed,
	}
}
