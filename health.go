package policykit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
)

// EngineHealth is the engine's own health report, covering the pieces a
// database ping cannot see.
type EngineHealth struct {
	Healthy            bool         `json:"healthy"`
	EpochSeq           uint64       `json:"epoch_seq"`
	EpochLoadedAt      time.Time    `json:"epoch_loaded_at"`
	UsingFallbackRoles bool         `json:"using_fallback_roles"`
	AuditHealthy       bool         `json:"audit_healthy"`
	Audit              AuditMetrics `json:"audit"`
}

// HealthService provides health monitoring functionality as an extension to Engine
type HealthService struct {
	*Engine
}

// NewHealthService creates a new health service extension
func NewHealthService(engine *Engine) *HealthService {
	return &HealthService{Engine: engine}
}

// Health performs a comprehensive health check of the database connection.
// Returns detailed status including latency, connection pool statistics, and error information.
func (hs *HealthService) Health(ctx context.Context) dbkit.HealthStatus {
	// Check if we have a DBKit instance
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}

	// If we're in a transaction or have a different type, do a basic ping
	return dbkit.HealthStatus{
		Healthy: hs.IsHealthy(ctx),
		Error:   "Limited health check - not a DBKit instance",
	}
}

// IsHealthy performs a simple health check of the database connection.
// Returns true if the database is reachable, false otherwise.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	if hs.db == nil {
		return false
	}

	// Check if we have a DBKit instance
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}

	// If we're in a transaction or have a different type, try to ping
	var count int
	err := hs.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &count)
	return err == nil
}

// GetPoolStats returns connection pool statistics for monitoring.
// Returns zero values if the database instance doesn't support pool statistics.
func (hs *HealthService) GetPoolStats() dbkit.PoolStats {
	// Check if we have a DBKit instance
	if db, ok := hs.db.(*dbkit.DBKit); ok {
		sqlStats := db.Stats()
		return dbkit.PoolStatsFromSQL(sqlStats)
	}

	// Return zero values for non-DBKit instances
	return dbkit.PoolStats{}
}

// Ping performs a basic connectivity test to the database.
// Returns an error if the database is not reachable.
func (hs *HealthService) Ping(ctx context.Context) error {
	if hs.db == nil {
		return NewError(ErrConfiguration, "no database configured")
	}

	// Use a simple query to test connectivity
	var result int
	return hs.db.NewSelect().Model((*struct{})(nil)).ColumnExpr("1").Limit(1).Scan(ctx, &result)
}

// EngineHealth reports the engine's internal health: which epoch serves
// requests, whether it runs on fallback roles, and how the audit pipeline
// is doing. Degraded boots and lost audit records mark it unhealthy.
func (hs *HealthService) EngineHealth() EngineHealth {
	auditHealthy := hs.audit.IsHealthy()
	fallback := hs.UsingFallbackRoles()

	return EngineHealth{
		Healthy:            auditHealthy && !fallback,
		EpochSeq:           hs.EpochSeq(),
		EpochLoadedAt:      hs.EpochLoadedAt(),
		UsingFallbackRoles: fallback,
		AuditHealthy:       auditHealthy,
		Audit:              hs.GetAuditMetrics(),
	}
}
