package policykit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigrationsList tests the shape of the migration set
func TestMigrationsList(t *testing.T) {
	migrations := Migrations()
	require.Len(t, migrations, 3)

	seen := make(map[string]bool)
	for _, m := range migrations {
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
		assert.True(t, strings.HasPrefix(m.ID, "policykit-"))
		assert.False(t, seen[m.ID], "migration IDs must be unique")
		seen[m.ID] = true
	}

	assert.Equal(t, "policykit-001", migrations[0].ID)
	assert.Contains(t, migrations[0].SQL, "policy_roles")
	assert.Equal(t, "policykit-002", migrations[1].ID)
	assert.Contains(t, migrations[1].SQL, "policy_audit_log")
	assert.Equal(t, "policykit-003", migrations[2].ID)
	assert.Contains(t, migrations[2].SQL, "idx_policy_audit_log_actor")
}

// TestMigrationServiceDelegation tests that the service exposes the same set
func TestMigrationServiceDelegation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ms := NewMigrationService(engine)

	fromService := ms.Migrations()
	fromPackage := Migrations()
	require.Len(t, fromService, len(fromPackage))
	for i := range fromService {
		assert.Equal(t, fromPackage[i].ID, fromService[i].ID)
	}
}

// TestMigrationServiceRequiresDBKit tests that migrations refuse to run
// without a full database handle
func TestMigrationServiceRequiresDBKit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ms := NewMigrationService(engine)

	_, err := ms.RunMigrations(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "does not support migrations")
}
