package policykit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoleSetOrdering validates that roles come back most privileged first,
// whatever order they were loaded in.
func TestRoleSetOrdering(t *testing.T) {
	rs, err := NewRoleSet([]RoleDescriptor{
		{Name: "viewer", Priority: 10},
		{Name: "admin", Priority: 100},
		{Name: "dispatcher", Priority: 40},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"admin", "dispatcher", "viewer"}, rs.Names())
	assert.Equal(t, 3, rs.Len())

	roles := rs.Roles()
	require.Len(t, roles, 3)
	assert.Equal(t, 100, roles[0].Priority)
	assert.Equal(t, 10, roles[2].Priority)
}

// TestRoleSetRejectsBadInput validates the configuration errors for empty
// sets, unnamed roles and duplicates.
func TestRoleSetRejectsBadInput(t *testing.T) {
	_, err := NewRoleSet(nil)
	assert.Error(t, err)
	assert.True(t, IsConfiguration(err))

	_, err = NewRoleSet([]RoleDescriptor{{Name: "", Priority: 1}})
	assert.Error(t, err)
	assert.True(t, IsConfiguration(err))

	_, err = NewRoleSet([]RoleDescriptor{
		{Name: "admin", Priority: 100},
		{Name: "admin", Priority: 50},
	})
	assert.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

// TestRoleSetDuplicatePriority validates that a priority collision is
// rejected and the error names both roles involved.
func TestRoleSetDuplicatePriority(t *testing.T) {
	_, err := NewRoleSet([]RoleDescriptor{
		{Name: "admin", Priority: 100},
		{Name: "owner", Priority: 100},
	})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `"admin"`)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "owner", e.Role)
}

// TestRoleSetLookups validates PriorityOf, AtLeast, Contains and Get.
func TestRoleSetLookups(t *testing.T) {
	rs, err := NewRoleSet(testRoles())
	require.NoError(t, err)

	p, ok := rs.PriorityOf("supervisor")
	assert.True(t, ok)
	assert.Equal(t, 60, p)

	_, ok = rs.PriorityOf("ghost")
	assert.False(t, ok)

	assert.True(t, rs.AtLeast("supervisor", 60))
	assert.True(t, rs.AtLeast("admin", 60))
	assert.False(t, rs.AtLeast("viewer", 60))
	assert.False(t, rs.AtLeast("ghost", 0))

	assert.True(t, rs.Contains("technician"))
	assert.False(t, rs.Contains("ghost"))

	r, ok := rs.Get("dispatcher")
	assert.True(t, ok)
	assert.Equal(t, 40, r.Priority)
}

// TestRoleSetCompare validates the pairwise ordering of roles.
func TestRoleSetCompare(t *testing.T) {
	rs, err := NewRoleSet(testRoles())
	require.NoError(t, err)

	cmp, ok := rs.Compare("viewer", "admin")
	assert.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = rs.Compare("admin", "technician")
	assert.True(t, ok)
	assert.Equal(t, 1, cmp)

	cmp, ok = rs.Compare("dispatcher", "dispatcher")
	assert.True(t, ok)
	assert.Equal(t, 0, cmp)

	_, ok = rs.Compare("ghost", "admin")
	assert.False(t, ok)
	_, ok = rs.Compare("admin", "ghost")
	assert.False(t, ok)
}

// TestRoleSetFallback validates the built-in degraded-boot set and its flag.
func TestRoleSetFallback(t *testing.T) {
	regular, err := NewRoleSet(testRoles())
	require.NoError(t, err)
	assert.False(t, regular.IsFallback())

	fb, err := newFallbackRoleSet(nil)
	require.NoError(t, err)
	assert.True(t, fb.IsFallback())
	assert.Equal(t, []string{"admin", "member", "viewer"}, fb.Names())

	custom, err := newFallbackRoleSet([]RoleDescriptor{{Name: "root", Priority: 1}})
	require.NoError(t, err)
	assert.True(t, custom.IsFallback())
	assert.Equal(t, []string{"root"}, custom.Names())
}

// TestRoleSetRolesReturnsCopy validates that mutating the returned slice does
// not touch the set.
func TestRoleSetRolesReturnsCopy(t *testing.T) {
	rs, err := NewRoleSet(testRoles())
	require.NoError(t, err)

	roles := rs.Roles()
	roles[0].Name = "tampered"

	assert.Equal(t, "admin", rs.Roles()[0].Name)
}
