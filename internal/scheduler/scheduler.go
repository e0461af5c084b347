// Package scheduler runs fire-and-forget work after a delay.
//
// Every callable runs on its own goroutine. Callers get no handle and no
// result: errors and panics are logged and swallowed. Deferred message
// deletions are journaled so that a restarted process can pick them up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/storage"
	"github.com/vietddude/floodguard/internal/infra/storage/memory"
	"github.com/vietddude/floodguard/internal/metrics"
)

var (
	// ErrStopped is returned when work is handed to a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")

	// ErrNoDeleter is returned by Restore before a deleter is bound.
	ErrNoDeleter = errors.New("scheduler has no deleter")

	errAlreadyScheduled = errors.New("already scheduled")
)

const (
	kindTask     = "task"
	kindDeletion = "deletion"
)

// Task is a deferred callable.
type Task func(ctx context.Context) error

// Deleter removes messages when a deferred deletion comes due.
type Deleter interface {
	DeleteDeferred(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID) error
}

// DeleterFunc adapts a function to Deleter.
type DeleterFunc func(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID) error

func (f DeleterFunc) DeleteDeferred(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID) error {
	return f(ctx, chatID, ids)
}

type timer struct {
	t    *time.Timer
	kind string
}

// Scheduler runs tasks after a delay. Safe for concurrent use.
type Scheduler struct {
	journal storage.DeletionJournal
	log     *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	deleter Deleter
	timers  map[string]*timer
	active  map[string]struct{}
	seq     uint64
	stopped bool
	running sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDeleter binds the deleter used for deferred deletions.
func WithDeleter(d Deleter) Option {
	return func(s *Scheduler) { s.deleter = d }
}

// New creates a scheduler. A nil journal keeps deletions in memory only.
func New(journal storage.DeletionJournal, opts ...Option) *Scheduler {
	if journal == nil {
		journal = memory.NewDeletionRepo(memory.NewMemoryStorage())
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		journal: journal,
		log:     slog.Default(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string]*timer),
		active:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDeleter binds the deleter after construction. The deleter usually
// depends on the scheduler itself.
func (s *Scheduler) SetDeleter(d Deleter) {
	s.mu.Lock()
	s.deleter = d
	s.mu.Unlock()
}

// Journal returns the deletion journal in use.
func (s *Scheduler) Journal() storage.DeletionJournal {
	return s.journal
}

// Schedule runs fn after delay on a new goroutine.
func (s *Scheduler) Schedule(delay time.Duration, fn Task) {
	s.mu.Lock()
	s.seq++
	key := "task-" + strconv.FormatUint(s.seq, 10)
	s.mu.Unlock()

	if err := s.start(key, delay, kindTask, fn, false); err != nil {
		s.log.Warn("Dropped deferred task", "error", err)
	}
}

// Delay runs fn(ctx, args) after delay on a new goroutine. args is handed
// over exactly as given.
func Delay[A any](s *Scheduler, delay time.Duration, fn func(ctx context.Context, args A) error, args A) {
	s.Schedule(delay, func(ctx context.Context) error {
		return fn(ctx, args)
	})
}

// ScheduleDeletion journals and schedules the removal of messages after
// delay. The deletion is scheduled even if journaling fails; the journal
// error is returned so the caller can log it.
func (s *Scheduler) ScheduleDeletion(
	ctx context.Context,
	chatID domain.ChatID,
	ids []domain.MessageID,
	delay time.Duration,
) (*domain.DeferredDeletion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if delay < 0 {
		delay = 0
	}

	now := s.now()
	d := &domain.DeferredDeletion{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		MessageIDs: slices.Clone(ids),
		DueAt:      now.Add(delay),
		CreatedAt:  now,
	}

	// Reserved before journaling so a concurrent Restore skips the entry.
	reserved := s.reserve(d.ID)
	journalErr := s.journal.Add(ctx, d)
	if journalErr != nil {
		journalErr = fmt.Errorf("journal deletion: %w", journalErr)
	}

	if err := s.startDeletion(d, delay, reserved); err != nil {
		return d, errors.Join(journalErr, err)
	}
	return d, journalErr
}

// Restore schedules journaled deletions this scheduler is not already
// waiting on or running, using the remaining delay. Overdue entries fire
// immediately.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	hasDeleter := s.deleter != nil
	s.mu.Unlock()
	if !hasDeleter {
		return 0, ErrNoDeleter
	}

	pending, err := s.journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}

	now := s.now()
	restored := 0
	for _, d := range pending {
		err := s.startDeletion(d, d.Remaining(now), false)
		if errors.Is(err, errAlreadyScheduled) {
			continue
		}
		if err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// Pending returns the number of timers that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Drain waits until every scheduled task has run or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		idle := len(s.active) == 0
		s.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop stops accepting work, drops timers that have not fired and waits for
// running tasks until ctx is done. Journaled deletions stay journaled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for key, e := range s.timers {
		e.t.Stop()
		if e.kind == kindDeletion {
			metrics.DeferredDeletionsPending.Dec()
		}
		delete(s.timers, key)
		delete(s.active, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// reserve marks key as active ahead of start. It reports false once the
// scheduler is stopped.
func (s *Scheduler) reserve(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.active[key] = struct{}{}
	return true
}

func (s *Scheduler) startDeletion(d *domain.DeferredDeletion, delay time.Duration, reserved bool) error {
	err := s.start(d.ID, delay, kindDeletion, func(ctx context.Context) error {
		return s.runDeletion(ctx, d)
	}, reserved)
	if err == nil {
		metrics.DeferredDeletionsPending.Inc()
	}
	return err
}

func (s *Scheduler) runDeletion(ctx context.Context, d *domain.DeferredDeletion) error {
	defer metrics.DeferredDeletionsPending.Dec()

	s.mu.Lock()
	deleter := s.deleter
	s.mu.Unlock()

	var err error
	if deleter == nil {
		err = ErrNoDeleter
	} else {
		err = deleter.DeleteDeferred(ctx, d.ChatID, d.MessageIDs)
	}

	// Dropped regardless of outcome: a failed deletion is not retried.
	if rmErr := s.journal.Remove(ctx, d.ID); rmErr != nil && !errors.Is(rmErr, storage.ErrDeletionNotFound) {
		s.log.Warn("Failed to remove deletion from journal", "id", d.ID, "error", rmErr)
	}

	if err != nil {
		metrics.DeferredDeletionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("delete %v in %d: %w", d.MessageIDs, d.ChatID, err)
	}
	metrics.DeferredDeletionsTotal.WithLabelValues("success").Inc()
	return nil
}

// start arms a timer for key. A key already active is rejected unless the
// caller reserved it.
func (s *Scheduler) start(key string, delay time.Duration, kind string, fn Task, reserved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		if reserved {
			delete(s.active, key)
		}
		return ErrStopped
	}
	if _, ok := s.active[key]; ok && !reserved {
		return errAlreadyScheduled
	}

	s.active[key] = struct{}{}
	t := time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.running.Add(1)
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			delete(s.active, key)
			s.mu.Unlock()
			s.running.Done()
		}()
		s.run(key, kind, fn)
	})
	s.timers[key] = &timer{t: t, kind: kind}
	return nil
}

func (s *Scheduler) run(key, kind string, fn Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Deferred task panicked", "kind", kind, "key", key, "panic", r)
		}
	}()

	if err := fn(s.ctx); err != nil {
		s.log.Warn("Deferred task failed", "kind", kind, "key", key, "error", err)
	}
}
