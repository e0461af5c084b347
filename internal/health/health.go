// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PlatformHealth describes how the messaging platform is treating us.
type PlatformHealth struct {
	Status        SystemStatus  `json:"status"`
	Throttle      string        `json:"throttle"`
	LastFloodWait time.Time     `json:"last_flood_wait,omitzero"`
	RetryAfter    time.Duration `json:"retry_after"`
	ErrorRate     float64       `json:"error_rate"`
	FloodWaits    int           `json:"flood_waits"`
}

// DeletionHealth describes the deferred deletion backlog.
type DeletionHealth struct {
	Status  SystemStatus `json:"status"`
	Pending int          `json:"pending"`
	Overdue int          `json:"overdue"`
	Error   string       `json:"error,omitempty"`
}

// ComponentHealth is the result of pinging a backing service.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Platform     PlatformHealth             `json:"platform"`
	Deletions    DeletionHealth             `json:"deletions"`
	Components   map[string]ComponentHealth `json:"components"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
