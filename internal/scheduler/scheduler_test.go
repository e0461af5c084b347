package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/storage/memory"
	"github.com/vietddude/floodguard/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *syncBuffer, *memory.DeletionRepo) {
	t.Helper()
	logs := &syncBuffer{}
	journal := memory.NewDeletionRepo(memory.NewMemoryStorage())
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(logs, nil)))}, opts...)
	s := New(journal, opts...)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s, logs, journal
}

func goroutineID() string {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// "goroutine 18 [running]:"
	fields := bytes.Fields(buf)
	if len(fields) < 2 {
		return ""
	}
	return string(fields[1])
}

type reportArgs struct {
	Chat domain.ChatID
	IDs  []domain.MessageID
}

func TestDelay_ExactArgsOnOtherGoroutine(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	args := reportArgs{Chat: -1001, IDs: []domain.MessageID{7, 8}}
	caller := goroutineID()

	got := make(chan reportArgs, 1)
	ran := make(chan string, 1)
	Delay(s, 0, func(ctx context.Context, a reportArgs) error {
		ran <- goroutineID()
		got <- a
		return nil
	}, args)

	select {
	case id := <-ran:
		assert.NotEqual(t, caller, id)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task did not run")
	}
	assert.Equal(t, args, <-got)
}

func TestDelay_ErrorsAndPanicsAreSwallowed(t *testing.T) {
	s, logs, _ := newTestScheduler(t)

	var wg sync.WaitGroup
	wg.Add(2)
	Delay(s, 0, func(ctx context.Context, n int) error {
		defer wg.Done()
		return errors.New("delete failed")
	}, 1)
	Delay(s, 0, func(ctx context.Context, n int) error {
		defer wg.Done()
		panic("boom")
	}, 2)

	// The caller returns immediately and is unaffected.
	wg.Wait()
	require.NoError(t, s.Stop(context.Background()))

	assert.Contains(t, logs.String(), "Deferred task failed")
	assert.Contains(t, logs.String(), "Deferred task panicked")
}

func TestSchedule_DelayedAndNotBlocking(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	start := time.Now()
	fired := make(chan time.Time, 1)
	s.Schedule(50*time.Millisecond, func(ctx context.Context) error {
		fired <- time.Now()
		return nil
	})
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, s.Pending())

	at := <-fired
	assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
}

type recordingDeleter struct {
	mu    sync.Mutex
	calls []reportArgs
	err   error
	done  chan struct{}
}

func newRecordingDeleter(err error) *recordingDeleter {
	return &recordingDeleter{err: err, done: make(chan struct{}, 16)}
}

func (d *recordingDeleter) DeleteDeferred(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) error {
	d.mu.Lock()
	d.calls = append(d.calls, reportArgs{Chat: chat, IDs: ids})
	d.mu.Unlock()
	d.done <- struct{}{}
	return d.err
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("deletion did not run")
	}
}

func TestScheduleDeletion_RunsAndLeavesJournal(t *testing.T) {
	for _, fail := range []bool{false, true} {
		var derr error
		if fail {
			derr = errors.New("MESSAGE_DELETE_FORBIDDEN")
		}
		deleter := newRecordingDeleter(derr)
		s, _, journal := newTestScheduler(t, WithDeleter(deleter))
		ctx := context.Background()

		d, err := s.ScheduleDeletion(ctx, -1001, []domain.MessageID{42}, 0)
		require.NoError(t, err)
		require.NotEmpty(t, d.ID)

		waitDone(t, deleter.done)
		require.NoError(t, s.Stop(ctx))

		pending, err := journal.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending, "fail=%v", fail)
		assert.Equal(t, []reportArgs{{Chat: -1001, IDs: []domain.MessageID{42}}}, deleter.calls)
	}
}

func TestScheduleDeletion_Empty(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	d, err := s.ScheduleDeletion(context.Background(), -1001, nil, time.Second)
	assert.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, 0, s.Pending())
}

func TestStop_KeepsUnfiredDeletionsJournaled(t *testing.T) {
	deleter := newRecordingDeleter(nil)
	s, _, journal := newTestScheduler(t, WithDeleter(deleter))
	ctx := context.Background()

	_, err := s.ScheduleDeletion(ctx, -1001, []domain.MessageID{1}, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Stop(ctx))

	pending, _ := journal.Pending(ctx)
	assert.Len(t, pending, 1)

	_, err = s.ScheduleDeletion(ctx, -1001, []domain.MessageID{2}, 0)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStop_ReleasesPendingGauge(t *testing.T) {
	s, _, _ := newTestScheduler(t, WithDeleter(newRecordingDeleter(nil)))
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.DeferredDeletionsPending)

	_, err := s.ScheduleDeletion(ctx, -1001, []domain.MessageID{1, 2}, time.Hour)
	require.NoError(t, err)
	_, err = s.ScheduleDeletion(ctx, -1002, []domain.MessageID{3}, time.Hour)
	require.NoError(t, err)
	s.Schedule(time.Hour, func(ctx context.Context) error { return nil })
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.DeferredDeletionsPending))

	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, before, testutil.ToFloat64(metrics.DeferredDeletionsPending))
}

// gatedJournal blocks Add after the entry is stored until release is closed.
type gatedJournal struct {
	*memory.DeletionRepo
	added   chan struct{}
	release chan struct{}
}

func (j *gatedJournal) Add(ctx context.Context, d *domain.DeferredDeletion) error {
	if err := j.DeletionRepo.Add(ctx, d); err != nil {
		return err
	}
	close(j.added)
	<-j.release
	return nil
}

func TestRestore_ConcurrentWithScheduleDeletion(t *testing.T) {
	ctx := context.Background()
	journal := &gatedJournal{
		DeletionRepo: memory.NewDeletionRepo(memory.NewMemoryStorage()),
		added:        make(chan struct{}),
		release:      make(chan struct{}),
	}
	deleter := newRecordingDeleter(nil)
	s := New(journal, WithDeleter(deleter), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	defer s.Stop(ctx)

	scheduled := make(chan error, 1)
	go func() {
		_, err := s.ScheduleDeletion(ctx, -1001, []domain.MessageID{9}, 0)
		scheduled <- err
	}()

	<-journal.added
	n, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	close(journal.release)
	require.NoError(t, <-scheduled)
	waitDone(t, deleter.done)

	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(drainCtx))

	deleter.mu.Lock()
	defer deleter.mu.Unlock()
	assert.Len(t, deleter.calls, 1)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewDeletionRepo(memory.NewMemoryStorage())
	now := time.Now()

	require.NoError(t, journal.Add(ctx, &domain.DeferredDeletion{
		ID: "overdue", ChatID: -1001, MessageIDs: []domain.MessageID{5}, DueAt: now.Add(-time.Minute),
	}))
	require.NoError(t, journal.Add(ctx, &domain.DeferredDeletion{
		ID: "later", ChatID: -1002, MessageIDs: []domain.MessageID{6}, DueAt: now.Add(time.Hour),
	}))

	s := New(journal, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	defer s.Stop(ctx)

	_, err := s.Restore(ctx)
	assert.ErrorIs(t, err, ErrNoDeleter)

	deleter := newRecordingDeleter(nil)
	s.SetDeleter(deleter)

	n, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	waitDone(t, deleter.done)
	assert.Equal(t, domain.ChatID(-1001), deleter.calls[0].Chat)

	// Tracked entries are not scheduled twice.
	n, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrain(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	var mu sync.Mutex
	ran := 0
	for range 3 {
		s.Schedule(20*time.Millisecond, func(ctx context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, ran)

	s.Schedule(time.Hour, func(ctx context.Context) error { return nil })
	short, cancelShort := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, s.Drain(short), context.DeadlineExceeded)
}
