package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/infra/storage/memory"
)

// =============================================================================
// Mocks
// =============================================================================

type stubFlood struct {
	stats rpc.MonitorStats
}

func (s *stubFlood) GetStats() rpc.MonitorStats { return s.stats }

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

// =============================================================================
// Tests
// =============================================================================

func TestCheckHealth_Healthy(t *testing.T) {
	m := NewMonitor(&stubFlood{}, memory.NewDeletionRepo(memory.NewMemoryStorage()))
	m.AddComponent("redis", &stubPinger{})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("SystemStatus = %v, want %v", report.SystemStatus, StatusHealthy)
	}
	if report.Components["redis"].Status != StatusHealthy {
		t.Errorf("redis = %v, want healthy", report.Components["redis"].Status)
	}
}

func TestCheckHealth_ThrottledIsDegraded(t *testing.T) {
	flood := &stubFlood{stats: rpc.MonitorStats{Status: rpc.StatusThrottled, RetryAfter: 30 * time.Second}}
	m := NewMonitor(flood, nil)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("SystemStatus = %v, want %v", report.SystemStatus, StatusDegraded)
	}
	if report.Platform.Throttle != "throttled" {
		t.Errorf("Throttle = %q, want throttled", report.Platform.Throttle)
	}
}

func TestCheckHealth_OverdueDeletions(t *testing.T) {
	ctx := context.Background()
	journal := memory.NewDeletionRepo(memory.NewMemoryStorage())
	now := time.Now()
	_ = journal.Add(ctx, &domain.DeferredDeletion{ID: "old", DueAt: now.Add(-time.Hour)})
	_ = journal.Add(ctx, &domain.DeferredDeletion{ID: "new", DueAt: now.Add(time.Minute)})

	report := NewMonitor(nil, journal).CheckHealth(ctx)
	if report.Deletions.Pending != 2 || report.Deletions.Overdue != 1 {
		t.Errorf("Deletions = %+v, want 2 pending, 1 overdue", report.Deletions)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("SystemStatus = %v, want %v", report.SystemStatus, StatusDegraded)
	}
}

func TestCheckHealth_CachesReport(t *testing.T) {
	pinger := &stubPinger{}
	m := NewMonitor(nil, nil)
	m.AddComponent("postgres", pinger)

	now := time.Now()
	m.now = func() time.Time { return now }

	m.CheckHealth(context.Background())
	pinger.err = errors.New("connection refused")

	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusHealthy {
		t.Errorf("cached SystemStatus = %v, want healthy", got)
	}

	now = now.Add(11 * time.Second)
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusCritical {
		t.Errorf("SystemStatus = %v, want critical", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	m := NewMonitor(nil, nil)
	m.AddComponent("redis", &stubPinger{err: errors.New("down")})
	h := NewServer(m, 0).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/health code = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Components["redis"].Error != "down" {
		t.Errorf("redis error = %q, want down", report.Components["redis"].Error)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics code = %d, want 200", rec.Code)
	}
}
