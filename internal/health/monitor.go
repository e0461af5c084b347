package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/infra/storage"
)

// FloodStats exposes flood monitor snapshots.
type FloodStats interface {
	GetStats() rpc.MonitorStats
}

// Pinger checks a backing service.
type Pinger interface {
	Health(ctx context.Context) error
}

// overdueGrace is how late a deletion may run before it counts as overdue.
const overdueGrace = 5 * time.Minute

// Monitor aggregates health status from various system components.
type Monitor struct {
	flood      FloodStats
	journal    storage.DeletionJournal
	components map[string]Pinger
	ttl        time.Duration
	now        func() time.Time
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. journal may be nil.
func NewMonitor(flood FloodStats, journal storage.DeletionJournal) *Monitor {
	return &Monitor{
		flood:      flood,
		journal:    journal,
		components: make(map[string]Pinger),
		ttl:        10 * time.Second,
		now:        time.Now,
	}
}

// AddComponent registers a backing service to ping.
func (m *Monitor) AddComponent(name string, p Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = p
}

// CheckHealth builds a health report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid hammering backends
	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.ttl {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.components)),
		CheckedAt:    now,
	}

	// 1. Platform
	report.Platform = m.platformHealth()
	report.SystemStatus = worst(report.SystemStatus, report.Platform.Status)

	// 2. Deferred deletions
	report.Deletions = m.deletionHealth(ctx, now)
	report.SystemStatus = worst(report.SystemStatus, report.Deletions.Status)

	// 3. Backing services
	for name, p := range m.components {
		c := ComponentHealth{Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			c = ComponentHealth{Status: StatusCritical, Error: err.Error()}
		}
		report.Components[name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) platformHealth() PlatformHealth {
	if m.flood == nil {
		return PlatformHealth{Status: StatusHealthy, Throttle: rpc.StatusHealthy.String()}
	}

	stats := m.flood.GetStats()
	h := PlatformHealth{
		Status:        StatusHealthy,
		Throttle:      stats.Status.String(),
		LastFloodWait: stats.LastFloodWait,
		RetryAfter:    stats.RetryAfter,
		ErrorRate:     stats.ErrorRate,
	}
	for _, op := range stats.Operations {
		h.FloodWaits += op.FloodWaits
	}

	// Flood waits are absorbed, so throttling only degrades.
	if stats.Status != rpc.StatusHealthy {
		h.Status = StatusDegraded
	}
	return h
}

func (m *Monitor) deletionHealth(ctx context.Context, now time.Time) DeletionHealth {
	h := DeletionHealth{Status: StatusHealthy}
	if m.journal == nil {
		return h
	}

	pending, err := m.journal.Pending(ctx)
	if err != nil {
		return DeletionHealth{Status: StatusCritical, Error: err.Error()}
	}

	h.Pending = len(pending)
	for _, d := range pending {
		if now.Sub(d.DueAt) > overdueGrace {
			h.Overdue++
		}
	}
	if h.Overdue > 0 {
		h.Status = StatusDegraded
	}
	return h
}
