package policykit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMonitorInitialState tests a freshly created monitor
func TestMonitorInitialState(t *testing.T) {
	m := newAuditMonitor()

	metrics := m.getMetrics()
	assert.Zero(t, metrics.TotalWrites)
	assert.Zero(t, metrics.PrimaryWrites)
	assert.Zero(t, metrics.FallbackWrites)
	assert.Zero(t, metrics.LostWrites)
	assert.Zero(t, metrics.AverageDuration)
	assert.Zero(t, metrics.MaxDuration)
	assert.Equal(t, time.Hour, metrics.MinDuration)
	assert.Empty(t, metrics.LastPrimaryError)
	assert.True(t, metrics.LastFailureAt.IsZero())
	assert.False(t, metrics.LastReset.IsZero())
	assert.True(t, m.isHealthy())
}

// TestMonitorRecordWrite tests outcome counting and duration tracking
func TestMonitorRecordWrite(t *testing.T) {
	m := newAuditMonitor()

	m.recordWrite(10*time.Millisecond, OutcomePrimary, nil)
	m.recordWrite(30*time.Millisecond, OutcomePrimary, nil)
	m.recordWrite(20*time.Millisecond, OutcomeFallback, errors.New("primary down"))

	metrics := m.getMetrics()
	assert.Equal(t, int64(3), metrics.TotalWrites)
	assert.Equal(t, int64(2), metrics.PrimaryWrites)
	assert.Equal(t, int64(1), metrics.FallbackWrites)
	assert.Equal(t, int64(0), metrics.LostWrites)
	assert.Equal(t, 20*time.Millisecond, metrics.AverageDuration)
	assert.Equal(t, 30*time.Millisecond, metrics.MaxDuration)
	assert.Equal(t, 10*time.Millisecond, metrics.MinDuration)
	assert.Equal(t, "primary down", metrics.LastPrimaryError)
	assert.False(t, metrics.LastFailureAt.IsZero())
}

// TestMonitorHealth tests that only lost writes flip health
func TestMonitorHealth(t *testing.T) {
	m := newAuditMonitor()

	m.recordWrite(time.Millisecond, OutcomeFallback, errors.New("primary down"))
	assert.True(t, m.isHealthy(), "fallback still persists the record")

	m.recordWrite(time.Millisecond, OutcomeLost, errors.New("primary down"))
	assert.False(t, m.isHealthy())

	metrics := m.getMetrics()
	assert.Equal(t, int64(1), metrics.LostWrites)
}

// TestMonitorLastErrorSticks tests that the last primary error survives
// later successful writes
func TestMonitorLastErrorSticks(t *testing.T) {
	m := newAuditMonitor()

	m.recordWrite(time.Millisecond, OutcomeFallback, errors.New("connection refused"))
	m.recordWrite(time.Millisecond, OutcomePrimary, nil)

	metrics := m.getMetrics()
	assert.Equal(t, "connection refused", metrics.LastPrimaryError)
	assert.Equal(t, int64(1), metrics.PrimaryWrites)
}

// TestMonitorReset tests that reset restores the initial state
func TestMonitorReset(t *testing.T) {
	m := newAuditMonitor()

	m.recordWrite(5*time.Millisecond, OutcomeLost, errors.New("boom"))
	require.False(t, m.isHealthy())
	before := m.getMetrics().LastReset

	m.reset()

	metrics := m.getMetrics()
	assert.Zero(t, metrics.TotalWrites)
	assert.Zero(t, metrics.LostWrites)
	assert.Zero(t, metrics.MaxDuration)
	assert.Equal(t, time.Hour, metrics.MinDuration)
	assert.Empty(t, metrics.LastPrimaryError)
	assert.True(t, metrics.LastFailureAt.IsZero())
	assert.True(t, m.isHealthy())
	assert.False(t, metrics.LastReset.Before(before))
}

// TestEngineMetricsCollectors tests that the collectors accept the label
// sets the engine records
func TestEngineMetricsCollectors(t *testing.T) {
	m := newEngineMetrics()

	assert.NotPanics(t, func() {
		m.recordDecision(Decision{Allowed: true, Resource: "work_orders", Operation: OpRead})
		m.recordDecision(Decision{Allowed: false, Resource: "invoices", Operation: OpDelete})
		m.recordAuditOutcome(OutcomePrimary)
		m.recordAuditOutcome(OutcomeLost)
		m.recordReload(nil)
		m.recordReload(errors.New("role source down"))
		m.recordDegradedBoot()
	})
}
