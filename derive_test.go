package policykit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDeriveConstantsTables validates every derived table over the fixture
// entity set.
func TestDeriveConstantsTables(t *testing.T) {
	dc, err := DeriveConstants(testRegistry().All())
	require.NoError(t, err)

	assert.Equal(t, "operations", dc.CategoryOf["work_order"])
	assert.Equal(t, "crm", dc.CategoryOf["customer"])
	assert.Equal(t, "billing", dc.CategoryOf["invoice"])

	assert.Equal(t, []string{"work_order"}, dc.EntitiesIn("operations"))
	assert.Empty(t, dc.EntitiesIn("nonexistent"))

	// Only GENERATED entities carry a prefix.
	assert.Equal(t, "WO", dc.IdentityPrefixes["work_order"])
	_, hasPrefix := dc.IdentityPrefixes["customer"]
	assert.False(t, hasPrefix)

	path, ok := dc.PathFor("work_order")
	assert.True(t, ok)
	assert.Equal(t, "/work_orders", path)

	_, ok = dc.PathFor("ghost")
	assert.False(t, ok)

	table, ok := dc.TableFor("invoices")
	assert.True(t, ok)
	assert.Equal(t, "invoices", table)

	_, ok = dc.TableFor("ghosts")
	assert.False(t, ok)
}

// TestDeriveConstantsAuditActions validates the entity.operation action names
// for the full operation set.
func TestDeriveConstantsAuditActions(t *testing.T) {
	dc, err := DeriveConstants(testRegistry().All())
	require.NoError(t, err)

	for _, op := range Operations() {
		action, ok := dc.AuditAction("work_order", op)
		assert.True(t, ok)
		assert.Equal(t, "work_order."+string(op), action)
	}

	_, ok := dc.AuditAction("ghost", OpRead)
	assert.False(t, ok)
}

// TestDeriveConstantsMissingCategory validates that a missing category fails
// derivation with an error naming the offending entity.
func TestDeriveConstantsMissingCategory(t *testing.T) {
	d := validDescriptor()
	d.Category = ""

	_, err := DeriveConstants([]EntityDescriptor{d})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `"asset"`)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "asset", e.Entity)
}

// TestDeriveConstantsMissingPrefix validates that a GENERATED entity without
// a prefix fails derivation with an error naming the entity.
func TestDeriveConstantsMissingPrefix(t *testing.T) {
	d := validDescriptor()
	d.NameConstruction = NameGenerated
	d.IdentityField = ""
	d.IdentityPrefix = ""

	_, err := DeriveConstants([]EntityDescriptor{d})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `"asset"`)
}

// TestDeriveConstantsDuplicateEntity validates that a doubled descriptor
// fails derivation instead of silently overwriting table entries.
func TestDeriveConstantsDuplicateEntity(t *testing.T) {
	d := validDescriptor()

	_, err := DeriveConstants([]EntityDescriptor{d, d})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

// TestDeriveConstantsCategoryOrder validates that category members keep
// registration order.
func TestDeriveConstantsCategoryOrder(t *testing.T) {
	first := validDescriptor()
	second := validDescriptor()
	second.EntityKey = "vehicle"
	second.TableName = "vehicles"
	second.RLSResource = "vehicles"

	dc, err := DeriveConstants([]EntityDescriptor{first, second})
	require.NoError(t, err)
	assert.Equal(t, []string{"asset", "vehicle"}, dc.EntitiesIn("operations"))
}
