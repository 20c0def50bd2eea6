package policykit

import (
	"fmt"
	"sort"
)

// RoleDescriptor is one role as loaded from the persisted role source.
// Higher priority means more privileged. Priorities are unique.
type RoleDescriptor struct {
	Name        string `yaml:"name"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description,omitempty"`
}

// RoleSet is the priority-ordered role index for one epoch. It is immutable
// once built; a reload builds a fresh set and swaps the epoch wholesale.
type RoleSet struct {
	byName   map[string]RoleDescriptor
	ordered  []RoleDescriptor // descending priority
	fallback bool
}

// NewRoleSet builds a role set from loaded descriptors. Duplicate names or
// priorities and empty sets are configuration errors.
func NewRoleSet(roles []RoleDescriptor) (*RoleSet, error) {
	if len(roles) == 0 {
		return nil, NewError(ErrConfiguration, "role set is empty")
	}

	byName := make(map[string]RoleDescriptor, len(roles))
	byPriority := make(map[int]string, len(roles))
	ordered := make([]RoleDescriptor, 0, len(roles))
	for _, role := range roles {
		if role.Name == "" {
			return nil, NewError(ErrConfiguration, "role name is required")
		}
		if _, exists := byName[role.Name]; exists {
			return nil, NewError(ErrConfiguration, "duplicate role name").WithRole(role.Name)
		}
		if other, exists := byPriority[role.Priority]; exists {
			return nil, NewError(ErrConfiguration,
				fmt.Sprintf("priority %d already used by role %q", role.Priority, other)).
				WithRole(role.Name)
		}
		byName[role.Name] = role
		byPriority[role.Priority] = role.Name
		ordered = append(ordered, role)
	}

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	return &RoleSet{byName: byName, ordered: ordered}, nil
}

// FallbackRoles is the minimal built-in role set used when the persisted role
// source is unavailable at boot. Its use is always flagged, never silent.
func FallbackRoles() []RoleDescriptor {
	return []RoleDescriptor{
		{Name: "admin", Priority: 100, Description: "degraded-boot administrator"},
		{Name: "member", Priority: 10, Description: "degraded-boot member"},
		{Name: "viewer", Priority: 1, Description: "degraded-boot read-only"},
	}
}

func newFallbackRoleSet(roles []RoleDescriptor) (*RoleSet, error) {
	if len(roles) == 0 {
		roles = FallbackRoles()
	}
	rs, err := NewRoleSet(roles)
	if err != nil {
		return nil, err
	}
	rs.fallback = true
	return rs, nil
}

// PriorityOf returns a role's priority. The second return is false for roles
// outside the set; callers must treat those as unprivileged.
func (rs *RoleSet) PriorityOf(role string) (int, bool) {
	r, ok := rs.byName[role]
	if !ok {
		return 0, false
	}
	return r.Priority, true
}

// AtLeast reports whether a role's priority meets a threshold.
// Unknown roles never meet any threshold.
func (rs *RoleSet) AtLeast(role string, threshold int) bool {
	p, ok := rs.byName[role]
	if !ok {
		return false
	}
	return p.Priority >= threshold
}

// Compare orders two roles by priority: -1 when a sits below b, +1 when it
// sits above. Priorities are unique, so 0 means both name the same role.
// The second return is false when either role is outside the set.
func (rs *RoleSet) Compare(a, b string) (int, bool) {
	pa, okA := rs.PriorityOf(a)
	pb, okB := rs.PriorityOf(b)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case pa < pb:
		return -1, true
	case pa > pb:
		return 1, true
	default:
		return 0, true
	}
}

// Contains reports whether the role is part of this epoch's set.
func (rs *RoleSet) Contains(role string) bool {
	_, ok := rs.byName[role]
	return ok
}

// Get returns the descriptor for a role name.
func (rs *RoleSet) Get(role string) (RoleDescriptor, bool) {
	r, ok := rs.byName[role]
	return r, ok
}

// Roles returns all roles in descending priority order.
func (rs *RoleSet) Roles() []RoleDescriptor {
	return append([]RoleDescriptor(nil), rs.ordered...)
}

// Names returns all role names in descending priority order.
func (rs *RoleSet) Names() []string {
	names := make([]string, len(rs.ordered))
	for i, r := range rs.ordered {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of roles in the set.
func (rs *RoleSet) Len() int {
	return len(rs.ordered)
}

// IsFallback reports whether this set is the built-in degraded-boot set
// rather than roles read from the persisted source.
func (rs *RoleSet) IsFallback() bool {
	return rs.fallback
}
