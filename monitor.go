package policykit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics provides audit pipeline performance and failure statistics.
type AuditMetrics struct {
	TotalWrites      int64         `json:"total_writes"`
	PrimaryWrites    int64         `json:"primary_writes"`
	FallbackWrites   int64         `json:"fallback_writes"`
	LostWrites       int64         `json:"lost_writes"`
	AverageDuration  time.Duration `json:"average_duration"`
	MaxDuration      time.Duration `json:"max_duration"`
	MinDuration      time.Duration `json:"min_duration"`
	LastPrimaryError string        `json:"last_primary_error,omitempty"`
	LastFailureAt    time.Time     `json:"last_failure_at,omitempty"`
	LastReset        time.Time     `json:"last_reset"`
}

// auditMonitor holds the internal audit monitoring state
type auditMonitor struct {
	totalCount       int64
	primaryCount     int64
	fallbackCount    int64
	lostCount        int64
	totalDuration    int64 // nanoseconds
	maxDuration      int64 // nanoseconds
	minDuration      int64 // nanoseconds
	lastPrimaryError string
	lastFailureAt    time.Time
	lastReset        time.Time
	mu               sync.RWMutex
}

// newAuditMonitor creates a new audit monitor
func newAuditMonitor() *auditMonitor {
	return &auditMonitor{
		minDuration: int64(time.Hour), // Initialize to a large value
		lastReset:   time.Now(),
	}
}

// recordWrite records an audit write with its duration and outcome
func (am *auditMonitor) recordWrite(duration time.Duration, outcome Outcome, primaryErr error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	atomic.AddInt64(&am.totalCount, 1)
	atomic.AddInt64(&am.totalDuration, int64(duration))

	switch outcome {
	case OutcomePrimary:
		atomic.AddInt64(&am.primaryCount, 1)
	case OutcomeFallback:
		atomic.AddInt64(&am.fallbackCount, 1)
	case OutcomeLost:
		atomic.AddInt64(&am.lostCount, 1)
	}

	if primaryErr != nil {
		am.lastPrimaryError = primaryErr.Error()
		am.lastFailureAt = time.Now()
	}

	// Update max duration
	durationNs := int64(duration)
	for {
		current := atomic.LoadInt64(&am.maxDuration)
		if durationNs <= current || atomic.CompareAndSwapInt64(&am.maxDuration, current, durationNs) {
			break
		}
	}

	// Update min duration
	for {
		current := atomic.LoadInt64(&am.minDuration)
		if durationNs >= current || atomic.CompareAndSwapInt64(&am.minDuration, current, durationNs) {
			break
		}
	}
}

// getMetrics returns the current audit metrics
func (am *auditMonitor) getMetrics() AuditMetrics {
	am.mu.RLock()
	defer am.mu.RUnlock()

	total := atomic.LoadInt64(&am.totalCount)
	primary := atomic.LoadInt64(&am.primaryCount)
	fallback := atomic.LoadInt64(&am.fallbackCount)
	lost := atomic.LoadInt64(&am.lostCount)
	totalDur := atomic.LoadInt64(&am.totalDuration)
	maxDur := atomic.LoadInt64(&am.maxDuration)
	minDur := atomic.LoadInt64(&am.minDuration)

	var avgDuration time.Duration
	if total > 0 {
		avgDuration = time.Duration(totalDur / total)
	}

	return AuditMetrics{
		TotalWrites:      total,
		PrimaryWrites:    primary,
		FallbackWrites:   fallback,
		LostWrites:       lost,
		AverageDuration:  avgDuration,
		MaxDuration:      time.Duration(maxDur),
		MinDuration:      time.Duration(minDur),
		LastPrimaryError: am.lastPrimaryError,
		LastFailureAt:    am.lastFailureAt,
		LastReset:        am.lastReset,
	}
}

// isHealthy reports whether the pipeline has lost any records since reset
func (am *auditMonitor) isHealthy() bool {
	return atomic.LoadInt64(&am.lostCount) == 0
}

// reset resets all metrics
func (am *auditMonitor) reset() {
	am.mu.Lock()
	defer am.mu.Unlock()

	atomic.StoreInt64(&am.totalCount, 0)
	atomic.StoreInt64(&am.primaryCount, 0)
	atomic.StoreInt64(&am.fallbackCount, 0)
	atomic.StoreInt64(&am.lostCount, 0)
	atomic.StoreInt64(&am.totalDuration, 0)
	atomic.StoreInt64(&am.maxDuration, 0)
	atomic.StoreInt64(&am.minDuration, int64(time.Hour))
	am.lastPrimaryError = ""
	am.lastFailureAt = time.Time{}
	am.lastReset = time.Now()
}

// engineMetrics exposes engine activity as Prometheus collectors. Created
// unregistered so tests and multi-engine processes never collide; New
// registers them only when Config.Metrics is set.
type engineMetrics struct {
	decisions     *prometheus.CounterVec
	auditOutcomes *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	degradedBoots prometheus.Counter
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policykit",
			Name:      "decisions_total",
			Help:      "Permission decisions by resource, operation and result.",
		}, []string{"resource", "operation", "decision"}),
		auditOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policykit",
			Name:      "audit_writes_total",
			Help:      "Audit writes by outcome (primary, fallback, lost).",
		}, []string{"outcome"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policykit",
			Name:      "reloads_total",
			Help:      "Role and policy reloads by result.",
		}, []string{"result"}),
		degradedBoots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "policykit",
			Name:      "degraded_boots_total",
			Help:      "Boots that fell back to the built-in role set.",
		}),
	}
}

func (m *engineMetrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.decisions, m.auditOutcomes, m.reloads, m.degradedBoots} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *engineMetrics) recordDecision(d Decision) {
	result := "deny"
	if d.Allowed {
		result = "allow"
	}
	m.decisions.WithLabelValues(d.Resource, string(d.Operation), result).Inc()
}

func (m *engineMetrics) recordAuditOutcome(outcome Outcome) {
	m.auditOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *engineMetrics) recordReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(result).Inc()
}

func (m *engineMetrics) recordDegradedBoot() {
	m.degradedBoots.Inc()
}
