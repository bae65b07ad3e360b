package model

import "time"

// HealthStatus is the liveness state of one polling source.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthRemediating HealthStatus = "remediating"
	HealthEscalated   HealthStatus = "escalated"
)

// HealthState carries everything the health monitor tracks for one
// terminal group. Each group owns its own instance; groups never share
// counters.
type HealthState struct {
	Group               string       `json:"group"`
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
	LastRemediationAt   *time.Time   `json:"last_remediation_at,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
}
