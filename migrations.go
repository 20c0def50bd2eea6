package policykit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// MigrationService provides migration management functionality as an extension to Engine
type MigrationService struct {
	*Engine
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(engine *Engine) *MigrationService {
	return &MigrationService{Engine: engine}
}

// Migrations returns all database migrations required for PolicyKit.
// Use db.Migrate(ctx, policykit.Migrations()) to run migrations.
func Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "policykit-001",
			Description: "Create policy_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS policy_roles (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    name TEXT NOT NULL UNIQUE,
                    priority INTEGER NOT NULL UNIQUE,
                    description TEXT,
                    created_at TIMESTAMPTZ DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "policykit-002",
			Description: "Create policy_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS policy_audit_log (
                    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor TEXT NOT NULL,
                    action TEXT NOT NULL,
                    resource TEXT NOT NULL,
                    resource_id TEXT,
                    decision TEXT NOT NULL,
                    reason TEXT,
                    old_value JSONB,
                    new_value JSONB,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
		{
			ID:          "policykit-003",
			Description: "Create policy_audit_log indexes",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_policy_audit_log_actor ON policy_audit_log (actor, created_at DESC);
                CREATE INDEX IF NOT EXISTS idx_policy_audit_log_resource ON policy_audit_log (resource, created_at DESC);
                CREATE INDEX IF NOT EXISTS idx_policy_audit_log_request ON policy_audit_log (request_id)`,
		},
	}
}

// Migrations returns all database migrations required for PolicyKit.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	return Migrations()
}

// RunMigrations applies any pending PolicyKit migrations. The engine's
// database must be a *dbkit.DBKit; transactions and wrappers cannot run
// migrations.
func (ms *MigrationService) RunMigrations(ctx context.Context) ([]dbkit.AppliedMigration, error) {
	db, ok := ms.db.(*dbkit.DBKit)
	if !ok {
		return nil, NewError(ErrConfiguration, "database does not support migrations")
	}

	result, err := db.Migrate(ctx, Migrations())
	if err != nil {
		return nil, dbkit.WithErr1(err, "RunMigrations").Err()
	}
	return result.Applied, nil
}
