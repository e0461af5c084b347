package provider

import (
	"sort"
	"sync"
	"time"
)

// Status represents the health state of the remote platform as seen by us.
type Status int

const (
	StatusHealthy   Status = iota // Calls go through
	StatusDegraded                // Many calls end in errors
	StatusThrottled               // Flood waits seen recently
)

func (s Status) String() string {
	switch s {
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	default:
		return "healthy"
	}
}

// OperationStats holds counters for one operation name.
type OperationStats struct {
	Name           string
	Attempts       int
	FloodWaits     int
	Waited         time.Duration
	Successes      int
	Denials        int
	Errors         int
	AverageLatency time.Duration
}

// MonitorStats is a snapshot of the monitor.
type MonitorStats struct {
	Status        Status
	LastFloodWait time.Time
	RetryAfter    time.Duration
	ErrorRate     float64
	Operations    []OperationStats
}

type opCounters struct {
	attempts   int
	floodWaits int
	waited     time.Duration
	successes  int
	denials    int
	errors     int
	latencies  []time.Duration
}

// FloodMonitor tracks flood waits and outcomes per operation.
type FloodMonitor struct {
	mu sync.RWMutex

	ops              map[string]*opCounters
	maxLatencyWindow int

	lastFloodWait  time.Time
	floodUntil     time.Time
	throttleWindow time.Duration

	degradedThreshold float64
	now               func() time.Time
}

// NewFloodMonitor creates a monitor with default settings.
func NewFloodMonitor() *FloodMonitor {
	return &FloodMonitor{
		ops:               make(map[string]*opCounters),
		maxLatencyWindow:  100,
		throttleWindow:    time.Minute,
		degradedThreshold: 0.3, // 30% error rate
		now:               time.Now,
	}
}

func (m *FloodMonitor) counters(name string) *opCounters {
	c, ok := m.ops[name]
	if !ok {
		c = &opCounters{latencies: make([]time.Duration, 0, 16)}
		m.ops[name] = c
	}
	return c
}

// RecordAttempt records one invocation of the named operation.
func (m *FloodMonitor) RecordAttempt(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(name).attempts++
}

// RecordFloodWait records a flood wait signaled for the named operation.
func (m *FloodMonitor) RecordFloodWait(name string, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c := m.counters(name)
	c.floodWaits++
	c.waited += wait

	m.lastFloodWait = now
	if until := now.Add(wait); until.After(m.floodUntil) {
		m.floodUntil = until
	}
}

// RecordSuccess records a successful completion with its total latency.
func (m *FloodMonitor) RecordSuccess(name string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters(name)
	c.successes++
	c.latencies = append(c.latencies, latency)
	if len(c.latencies) > m.maxLatencyWindow {
		c.latencies = c.latencies[1:]
	}
}

// RecordDenied records a permanent denial.
func (m *FloodMonitor) RecordDenied(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(name).denials++
}

// RecordError records an unclassified failure.
func (m *FloodMonitor) RecordError(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(name).errors++
}

// Status returns the current status.
func (m *FloodMonitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *FloodMonitor) statusLocked() Status {
	now := m.now()
	if !m.lastFloodWait.IsZero() &&
		(now.Before(m.floodUntil) || now.Sub(m.lastFloodWait) < m.throttleWindow) {
		return StatusThrottled
	}
	if m.errorRateLocked() > m.degradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *FloodMonitor) errorRateLocked() float64 {
	var done, failed int
	for _, c := range m.ops {
		done += c.successes + c.denials + c.errors
		failed += c.errors
	}
	if done == 0 {
		return 0
	}
	return float64(failed) / float64(done)
}

// RetryAfter returns how long the longest pending flood wait still lasts.
func (m *FloodMonitor) RetryAfter() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if remaining := m.floodUntil.Sub(m.now()); remaining > 0 {
		return remaining
	}
	return 0
}

// GetStats returns a snapshot sorted by operation name.
func (m *FloodMonitor) GetStats() MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MonitorStats{
		Status:        m.statusLocked(),
		LastFloodWait: m.lastFloodWait,
		ErrorRate:     m.errorRateLocked(),
		Operations:    make([]OperationStats, 0, len(m.ops)),
	}
	if remaining := m.floodUntil.Sub(m.now()); remaining > 0 {
		stats.RetryAfter = remaining
	}

	for name, c := range m.ops {
		op := OperationStats{
			Name:       name,
			Attempts:   c.attempts,
			FloodWaits: c.floodWaits,
			Waited:     c.waited,
			Successes:  c.successes,
			Denials:    c.denials,
			Errors:     c.errors,
		}
		if len(c.latencies) > 0 {
			var total time.Duration
			for _, lat := range c.latencies {
				total += lat
			}
			op.AverageLatency = total / time.Duration(len(c.latencies))
		}
		stats.Operations = append(stats.Operations, op)
	}
	sort.Slice(stats.Operations, func(i, j int) bool {
		return stats.Operations[i].Name < stats.Operations[j].Name
	})

	return stats
}
