package policykit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Database defines the database operations interface for dependency injection
type Database interface {
	dbkit.IDB
}

// RoleSource loads the persisted role hierarchy. The engine calls it at
// boot and on every reload.
type RoleSource interface {
	LoadRoles(ctx context.Context) ([]RoleDescriptor, error)
}

// AuditSink receives audit records. Implementations must be safe for
// concurrent use.
type AuditSink interface {
	Write(ctx context.Context, rec *AuditRecord) error
}

// AuditQuerier is implemented by sinks that can also read records back.
type AuditQuerier interface {
	Query(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}

// PermissionDecider defines the permission evaluation interface
type PermissionDecider interface {
	Can(ctx context.Context, role string, op Operation) bool
	Decide(ctx context.Context, role string, op Operation) Decision
}

// RowFilter defines the row-policy evaluation interface
type RowFilter interface {
	FilterFor(ctx context.Context, role string) Predicate
}

// PayloadValidator defines the payload validation interface
type PayloadValidator interface {
	Validate(entityKey string, op Operation, payload map[string]any) (ValidationResult, error)
}

// MigrationManager defines the migration management interface
type MigrationManager interface {
	Migrations() []dbkit.Migration
	RunMigrations(ctx context.Context) ([]dbkit.AppliedMigration, error)
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
	GetPoolStats() dbkit.PoolStats
}
