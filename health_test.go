package policykit

import (
	"context"
	"errors"
	"testing"

	"github.com/fernandezvara/dbkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthServiceWithoutDatabase tests the degraded answers an engine
// without a database gives
func TestHealthServiceWithoutDatabase(t *testing.T) {
	engine, _ := newTestEngine(t)
	hs := NewHealthService(engine)
	ctx := context.Background()

	assert.False(t, hs.IsHealthy(ctx))

	err := hs.Ping(ctx)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	status := hs.Health(ctx)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "Limited health check")

	assert.Equal(t, dbkit.PoolStats{}, hs.GetPoolStats())
}

// TestHealthServiceEngineHealth tests the engine's own health report
func TestHealthServiceEngineHealth(t *testing.T) {
	engine, sink := newTestEngine(t)
	hs := NewHealthService(engine)

	health := hs.EngineHealth()
	assert.True(t, health.Healthy)
	assert.True(t, health.AuditHealthy)
	assert.False(t, health.UsingFallbackRoles)
	assert.Equal(t, uint64(1), health.EpochSeq)
	assert.False(t, health.EpochLoadedAt.IsZero())
	assert.Zero(t, health.Audit.LostWrites)

	// A lost audit record marks the engine unhealthy until reset. The test
	// engine has no fallback sink, so a failing primary loses the write.
	sink.Fail(errors.New("disk full"))
	outcome := engine.Audit().Record(context.Background(), &AuditRecord{
		Actor: "user-1", Action: "work_order.read", Resource: "work_orders", Decision: "allow",
	})
	require.Equal(t, OutcomeLost, outcome)

	health = hs.EngineHealth()
	assert.False(t, health.Healthy)
	assert.False(t, health.AuditHealthy)
	assert.Equal(t, int64(1), health.Audit.LostWrites)

	engine.ResetAuditMetrics()
	assert.True(t, hs.EngineHealth().Healthy)
}

// TestHealthServiceDegradedBoot tests that running on fallback roles is
// reported as unhealthy even when audit is fine
func TestHealthServiceDegradedBoot(t *testing.T) {
	engine, err := New(context.Background(), Config{
		Registry:   testRegistry(),
		RoleSource: NewFailingRoleSource(errors.New("roles table missing")),
		Grants: []Grant{
			{Role: "viewer", Resource: "work_orders", Operation: OpRead, Effect: EffectAllow},
		},
		AuditPrimary: NewMemoryAuditSink(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	health := NewHealthService(engine).EngineHealth()
	assert.False(t, health.Healthy)
	assert.True(t, health.AuditHealthy)
	assert.True(t, health.UsingFallbackRoles)
}
