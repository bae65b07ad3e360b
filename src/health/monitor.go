package health

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"fundledger/src/model"
)

// Remediator triggers the external, out-of-process remediation action
// for a terminal group. The call must be idempotent on the remote side;
// a rejection means a remediation is already in flight.
type Remediator interface {
	TriggerRemediation(ctx context.Context, group, reason string) (accepted bool, err error)
}

// Monitor owns the health state machine for exactly one terminal group.
// Groups never share a monitor, so one terminal's failures cannot touch
// another's counters.
//
// Transitions:
//
//	healthy     -> degraded     first failed poll
//	degraded    -> remediating  threshold failures in window + cooldown elapsed
//	remediating -> healthy      next successful poll
//	remediating -> escalated    still failing once the verification delay is up
//	escalated   -> healthy      manual Reset only
type Monitor struct {
	mu         sync.Mutex
	group      string
	cfg        Config
	remediator Remediator
	now        func() time.Time

	status        model.HealthStatus
	failures      []time.Time
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	remediatedAt  *time.Time
	lastError     string
}

// NewMonitor builds a monitor for one terminal group.
func NewMonitor(group string, cfg Config, remediator Remediator) *Monitor {
	return &Monitor{
		group:      group,
		cfg:        cfg,
		remediator: remediator,
		now:        time.Now,
		status:     model.HealthHealthy,
	}
}

// WithClock overrides the monitor's clock. Useful for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// ObserveSuccess records a successful poll cycle.
func (m *Monitor) ObserveSuccess(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.lastSuccessAt = &now
	m.failures = m.failures[:0]
	m.lastError = ""

	switch m.status {
	case model.HealthEscalated:
		// Data is flowing again, but escalation requires a human: the
		// state stays put until someone resets it.
		logger.WithFields(map[string]interface{}{
			"component": "HealthMonitor",
			"group":     m.group,
		}).Warn("Poll succeeded while escalated; manual reset still required")
	case model.HealthDegraded, model.HealthRemediating:
		logger.WithFields(map[string]interface{}{
			"component": "HealthMonitor",
			"group":     m.group,
			"from":      m.status,
		}).Info("Poll recovered, group healthy")
		m.status = model.HealthHealthy
	}
}

// ObserveFailure records a failed poll cycle and drives the state
// machine, triggering remediation when the streak and cooldown allow it.
func (m *Monitor) ObserveFailure(ctx context.Context, pollErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.lastFailureAt = &now
	if pollErr != nil {
		m.lastError = pollErr.Error()
	}

	m.failures = append(m.failures, now)
	m.pruneWindow(now)

	switch m.status {
	case model.HealthEscalated:
		// Halted. Failures are recorded but nothing is retried.
		return

	case model.HealthRemediating:
		if m.remediatedAt != nil && now.Sub(*m.remediatedAt) >= m.cfg.VerificationDelay {
			m.status = model.HealthEscalated
			logger.WithFields(map[string]interface{}{
				"component": "HealthMonitor",
				"group":     m.group,
				"escalated": true,
			}).WithError(pollErr).Error("Remediation did not restore polling; escalating, manual reset required")
		}
		return

	case model.HealthHealthy:
		m.status = model.HealthDegraded
	}

	if len(m.failures) < m.cfg.FailureThreshold {
		return
	}

	if m.remediatedAt != nil && now.Sub(*m.remediatedAt) < m.cfg.RemediationCooldown {
		logger.WithFields(map[string]interface{}{
			"component": "HealthMonitor",
			"group":     m.group,
			"failures":  len(m.failures),
		}).Warn("Failure threshold reached but remediation cooldown not elapsed")
		return
	}

	reason := "poll failure streak"
	if pollErr != nil {
		reason = pollErr.Error()
	}

	accepted, err := m.remediator.TriggerRemediation(ctx, m.group, reason)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "HealthMonitor",
			"group":     m.group,
		}).WithError(err).Error("Failed to trigger remediation")
		return
	}
	if !accepted {
		logger.WithFields(map[string]interface{}{
			"component": "HealthMonitor",
			"group":     m.group,
		}).Warn("Remediation rejected, already in flight")
		return
	}

	m.remediatedAt = &now
	m.status = model.HealthRemediating

	logger.WithFields(map[string]interface{}{
		"component": "HealthMonitor",
		"group":     m.group,
		"failures":  len(m.failures),
	}).Warn("Remediation triggered, awaiting verification")
}

// Reset manually returns an escalated group to healthy and re-arms
// automatic remediation.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = model.HealthHealthy
	m.failures = m.failures[:0]
	m.remediatedAt = nil
	m.lastError = ""

	logger.WithFields(map[string]interface{}{
		"component": "HealthMonitor",
		"group":     m.group,
	}).Info("Health state manually reset")
}

// State returns a copy of the current health state.
func (m *Monitor) State() model.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return model.HealthState{
		Group:               m.group,
		Status:              m.status,
		ConsecutiveFailures: len(m.failures),
		LastSuccessAt:       m.lastSuccessAt,
		LastFailureAt:       m.lastFailureAt,
		LastRemediationAt:   m.remediatedAt,
		LastError:           m.lastError,
	}
}

// pruneWindow drops failures older than the rolling window. Must be
// called with the mutex held.
func (m *Monitor) pruneWindow(now time.Time) {
	cutoff := now.Add(-m.cfg.RollingWindow)
	kept := m.failures[:0]
	for _, at := range m.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	m.failures = kept
}
